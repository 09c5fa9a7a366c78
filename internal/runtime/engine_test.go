package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warren-hq/warren/internal/registry"
	"github.com/warren-hq/warren/pkg/bothandler"
	"github.com/warren-hq/warren/pkg/statestore"
)

// recordingDeliverer captures delivered messages for assertions.
type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
}

func (d *recordingDeliverer) Deliver(_ context.Context, _ bothandler.Identity, _ bothandler.MessageKind, _, _, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, content)
	return nil
}

func (d *recordingDeliverer) contents() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...)
}

// testBot echoes incoming content back as a reply, or fails on demand.
type testBot struct {
	mu      sync.Mutex
	handled []string
	fail    bool
}

func (b *testBot) Initialize(context.Context, *bothandler.Handler) error {
	return nil
}

func (b *testBot) HandleMessage(ctx context.Context, msg *bothandler.IncomingMessage, handler *bothandler.Handler) error {
	b.mu.Lock()
	b.handled = append(b.handled, msg.Content)
	fail := b.fail
	b.mu.Unlock()

	if fail {
		return errors.New("bot exploded")
	}
	return handler.SendReply(ctx, msg, "echo: "+msg.Content)
}

func (b *testBot) handledContents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.handled...)
}

type engineEnv struct {
	engine    *Engine
	bot       *testBot
	deliverer *recordingDeliverer
	rdb       *redis.Client
	cancel    context.CancelFunc
	done      chan error
}

// setupEngine starts an engine hosting one "echo" bot against miniredis
// and waits until its event subscription is live.
func setupEngine(t *testing.T) *engineEnv {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	opts := &redis.Options{Addr: mr.Addr()}

	backend, err := statestore.NewRedisBackend(opts, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	bot := &testBot{}
	reg := registry.New()
	require.NoError(t, reg.Register("echo", func() registry.Bot { return bot }))

	deliverer := &recordingDeliverer{}

	engine, err := New(
		Config{InstanceName: "test-instance", Workers: 2},
		opts,
		reg,
		statestore.NewManager(backend),
		deliverer,
		nil,
	)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	identity := bothandler.Identity{ID: "echo", FullName: "Echo Bot", Email: "echo-bot@example.com", Realm: "test"}
	require.NoError(t, engine.Host(context.Background(), identity))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	stopped := make(chan struct{})
	go func() {
		done <- engine.Start(ctx)
		close(stopped)
	}()

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })

	// Wait for the engine's subscription before publishing events;
	// Redis Pub/Sub drops messages with no subscriber.
	require.Eventually(t, func() bool {
		subs, err := rdb.PubSubNumSub(context.Background(), EventsChannel("test-instance")).Result()
		return err == nil && subs[EventsChannel("test-instance")] > 0
	}, 2*time.Second, 10*time.Millisecond)

	env := &engineEnv{engine: engine, bot: bot, deliverer: deliverer, rdb: rdb, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("engine did not shut down in time")
		}
	})
	return env
}

func testEvent(id, service, content string) *Event {
	return &Event{
		ID:      id,
		Service: service,
		Message: bothandler.IncomingMessage{
			ID:          id,
			Kind:        bothandler.KindStream,
			Recipients:  []string{"general"},
			Subject:     "testing",
			Content:     content,
			SenderEmail: "ana@example.com",
		},
	}
}

func TestEngineInvokesBot(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, PublishEvent(ctx, env.rdb, "test-instance", testEvent("ev-1", "echo", "hello")))

	require.Eventually(t, func() bool {
		return len(env.bot.handledContents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"hello"}, env.bot.handledContents())
	assert.Equal(t, []string{"echo: hello"}, env.deliverer.contents())
}

func TestEngineSkipsUnknownService(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, PublishEvent(ctx, env.rdb, "test-instance", testEvent("ev-1", "ghost", "boo")))
	require.NoError(t, PublishEvent(ctx, env.rdb, "test-instance", testEvent("ev-2", "echo", "after")))

	require.Eventually(t, func() bool {
		return len(env.bot.handledContents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The unknown-service event was skipped, not queued for anyone else.
	assert.Equal(t, []string{"after"}, env.bot.handledContents())
}

func TestEngineSurvivesBotFailure(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	env.bot.mu.Lock()
	env.bot.fail = true
	env.bot.mu.Unlock()

	require.NoError(t, PublishEvent(ctx, env.rdb, "test-instance", testEvent("ev-1", "echo", "boom")))

	require.Eventually(t, func() bool {
		return len(env.bot.handledContents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	env.bot.mu.Lock()
	env.bot.fail = false
	env.bot.mu.Unlock()

	require.NoError(t, PublishEvent(ctx, env.rdb, "test-instance", testEvent("ev-2", "echo", "recovered")))

	require.Eventually(t, func() bool {
		return len(env.bot.handledContents()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	// Only the successful invocation delivered anything.
	assert.Equal(t, []string{"echo: recovered"}, env.deliverer.contents())
}

func TestEngineHandlesManyEvents(t *testing.T) {
	env := setupEngine(t)
	ctx := context.Background()

	const events = 20
	for i := 0; i < events; i++ {
		require.NoError(t, PublishEvent(ctx, env.rdb, "test-instance",
			testEvent(fmt.Sprintf("ev-%d", i), "echo", fmt.Sprintf("msg-%d", i))))
	}

	require.Eventually(t, func() bool {
		return len(env.bot.handledContents()) == events
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEngineGracefulShutdown(t *testing.T) {
	env := setupEngine(t)

	env.cancel()
	select {
	case err := <-env.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down in time")
	}
}

func TestEngineHost(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	opts := &redis.Options{Addr: mr.Addr()}
	backend, err := statestore.NewRedisBackend(opts, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	reg := registry.New()
	require.NoError(t, reg.Register("echo", func() registry.Bot { return &testBot{} }))

	engine, err := New(Config{InstanceName: "test-instance"}, opts, reg, statestore.NewManager(backend), &recordingDeliverer{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	identity := bothandler.Identity{ID: "echo", FullName: "Echo Bot", Email: "echo-bot@example.com"}

	t.Run("rejects unregistered services", func(t *testing.T) {
		ghost := bothandler.Identity{ID: "ghost", FullName: "Ghost", Email: "ghost@example.com"}
		err := engine.Host(context.Background(), ghost)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a registered embedded bot")
	})

	t.Run("hosts a registered service once", func(t *testing.T) {
		require.NoError(t, engine.Host(context.Background(), identity))
		assert.Equal(t, []string{"echo"}, engine.HostedServices())

		err := engine.Host(context.Background(), identity)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already hosted")
	})
}

func TestPublishEventValidation(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()

	err := PublishEvent(ctx, rdb, "test-instance", &Event{Service: "echo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event id is required")

	err = PublishEvent(ctx, rdb, "test-instance", &Event{ID: "ev-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "event service is required")
}
