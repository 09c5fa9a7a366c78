//go:build integration
// +build integration

// Package testutil provides the shared environment for integration tests:
// a real Redis server started in a container, torn down with the test.
// Gated behind the "integration" build tag so unit runs stay Docker-free.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const redisPort = nat.Port("6379/tcp")

// RedisEnv is a running Redis container reachable from the test process.
type RedisEnv struct {
	Addr string // host:port of the containerized Redis
}

// Options returns connection options for the containerized Redis.
func (e *RedisEnv) Options() *redis.Options {
	return &redis.Options{Addr: e.Addr}
}

// StartRedis launches a Redis container and registers its teardown with
// the test. Fails the test if Docker is unavailable.
func StartRedis(t *testing.T) *RedisEnv {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{string(redisPort)},
			WaitingFor:   wait.ForListeningPort(redisPort),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, redisPort)
	require.NoError(t, err)

	return &RedisEnv{Addr: fmt.Sprintf("%s:%s", host, port.Port())}
}
