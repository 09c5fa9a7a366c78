package statestore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Backend is the persistence layer beneath a Store. Implementations hold the
// actual `(bot, key) -> payload` pairs plus a derivable total size per bot;
// everything else (encoding, quota enforcement) lives in the Store.
//
// Backends do not serialize concurrent writes to the same bot themselves;
// the Manager's per-bot lock does. SetState must, however, keep the stored
// payload and the total-size accounting consistent with each other.
type Backend interface {
	// GetState returns the stored payload for key, or ErrNotFound.
	GetState(ctx context.Context, botID, key string) ([]byte, error)

	// SetState writes the payload for key, replacing any previous value,
	// and adjusts the bot's total size accordingly.
	SetState(ctx context.Context, botID, key string, payload []byte) error

	// HasState reports whether a value exists for key.
	HasState(ctx context.Context, botID, key string) (bool, error)

	// StateSize returns the entry size for key (len(key) + len(payload)),
	// or 0 if no value exists.
	StateSize(ctx context.Context, botID, key string) (int64, error)

	// TotalSize returns the summed entry sizes for all of the bot's keys.
	TotalSize(ctx context.Context, botID string) (int64, error)
}

// RedisBackend stores bot state in Redis. Entries live in a hash per bot and
// the running total lives in a separate counter key; both are written in a
// single MULTI/EXEC transaction so they cannot diverge.
//
// All keys are namespaced with the instance name.
type RedisBackend struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisBackend creates a Redis-backed state backend for the specified
// instance. Returns an error if instanceName is empty.
func NewRedisBackend(redisOpts *redis.Options, instanceName string) (*RedisBackend, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &RedisBackend{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// GetState returns the stored payload for key, or ErrNotFound.
func (b *RedisBackend) GetState(ctx context.Context, botID, key string) ([]byte, error) {
	payload, err := b.rdb.HGet(ctx, StateKey(b.instanceName, botID), key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bot state from Redis: %w", err)
	}
	return payload, nil
}

// SetState writes the payload for key and moves the size counter by the
// entry-size delta in the same transaction as the hash write.
func (b *RedisBackend) SetState(ctx context.Context, botID, key string, payload []byte) error {
	oldSize, err := b.StateSize(ctx, botID, key)
	if err != nil {
		return err
	}
	newSize := entrySize(key, payload)

	_, err = b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, StateKey(b.instanceName, botID), key, payload)
		if delta := newSize - oldSize; delta != 0 {
			pipe.IncrBy(ctx, StateSizeKey(b.instanceName, botID), delta)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write bot state to Redis: %w", err)
	}
	return nil
}

// HasState reports whether a value exists for key.
func (b *RedisBackend) HasState(ctx context.Context, botID, key string) (bool, error) {
	exists, err := b.rdb.HExists(ctx, StateKey(b.instanceName, botID), key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check bot state existence: %w", err)
	}
	return exists, nil
}

// StateSize returns the entry size for key, or 0 if no value exists.
func (b *RedisBackend) StateSize(ctx context.Context, botID, key string) (int64, error) {
	payload, err := b.rdb.HGet(ctx, StateKey(b.instanceName, botID), key).Bytes()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read bot state entry size: %w", err)
	}
	return entrySize(key, payload), nil
}

// TotalSize returns the bot's running size counter, 0 if never written.
func (b *RedisBackend) TotalSize(ctx context.Context, botID string) (int64, error) {
	val, err := b.rdb.Get(ctx, StateSizeKey(b.instanceName, botID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read bot state total size: %w", err)
	}

	total, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt bot state size counter %q: %w", val, err)
	}
	return total, nil
}

// entrySize is the accounted size of one state entry.
func entrySize(key string, payload []byte) int64 {
	return int64(len(key) + len(payload))
}
