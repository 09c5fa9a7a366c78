package bothandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warren-hq/warren/pkg/ratelimit"
	"github.com/warren-hq/warren/pkg/statestore"
)

// capturedDelivery records one Deliver call for assertions.
type capturedDelivery struct {
	Sender     Identity
	Kind       MessageKind
	Recipients string
	Subject    string
	Content    string
}

// fakeDeliverer captures deliveries and can be told to fail.
type fakeDeliverer struct {
	deliveries []capturedDelivery
	err        error
}

func (d *fakeDeliverer) Deliver(_ context.Context, sender Identity, kind MessageKind, recipients, subject, content string) error {
	if d.err != nil {
		return d.err
	}
	d.deliveries = append(d.deliveries, capturedDelivery{
		Sender:     sender,
		Kind:       kind,
		Recipients: recipients,
		Subject:    subject,
		Content:    content,
	})
	return nil
}

// fakeConfigLoader returns canned sections keyed by "bot/section".
type fakeConfigLoader struct {
	sections map[string]map[string]string
	err      error
}

func (l *fakeConfigLoader) LoadSection(botName, section string) (map[string]string, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.sections[botName+"/"+section], nil
}

func testIdentity() Identity {
	return Identity{
		ID:       "echo-bot",
		FullName: "Echo Bot",
		Email:    "echo-bot@example.com",
		Realm:    "example",
	}
}

func setupTestStore(t *testing.T) *statestore.Store {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	backend, err := statestore.NewRedisBackend(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	return statestore.NewManager(backend).For("echo-bot")
}

func setupTestHandler(t *testing.T, limiter *ratelimit.Limiter) (*Handler, *fakeDeliverer, *fakeConfigLoader) {
	deliverer := &fakeDeliverer{}
	configs := &fakeConfigLoader{sections: map[string]map[string]string{}}

	handler, err := New(testIdentity(), setupTestStore(t), limiter, deliverer, configs)
	require.NoError(t, err)

	return handler, deliverer, configs
}

func TestNewHandler(t *testing.T) {
	t.Run("rejects invalid identity", func(t *testing.T) {
		_, err := New(Identity{}, setupTestStore(t), nil, &fakeDeliverer{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid bot identity")
	})

	t.Run("requires storage and deliverer", func(t *testing.T) {
		_, err := New(testIdentity(), nil, nil, &fakeDeliverer{}, nil)
		assert.Error(t, err)

		_, err = New(testIdentity(), setupTestStore(t), nil, nil, nil)
		assert.Error(t, err)
	})

	t.Run("exposes identity fields read-only", func(t *testing.T) {
		handler, _, _ := setupTestHandler(t, nil)
		assert.Equal(t, "Echo Bot", handler.FullName())
		assert.Equal(t, "echo-bot@example.com", handler.Email())
		assert.NotNil(t, handler.Storage())
	})
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("stream recipients pass through as-is", func(t *testing.T) {
		handler, deliverer, _ := setupTestHandler(t, nil)

		err := handler.SendMessage(ctx, OutboundMessage{
			Kind:    KindStream,
			To:      []string{"general"},
			Subject: "greetings",
			Content: "hello",
		})
		require.NoError(t, err)

		require.Len(t, deliverer.deliveries, 1)
		d := deliverer.deliveries[0]
		assert.Equal(t, KindStream, d.Kind)
		assert.Equal(t, "general", d.Recipients)
		assert.Equal(t, "greetings", d.Subject)
		assert.Equal(t, "hello", d.Content)
		assert.Equal(t, "echo-bot@example.com", d.Sender.Email)
	})

	t.Run("private recipients are comma-joined", func(t *testing.T) {
		handler, deliverer, _ := setupTestHandler(t, nil)

		err := handler.SendMessage(ctx, OutboundMessage{
			Kind:    KindPrivate,
			To:      []string{"ana@example.com", "ben@example.com"},
			Content: "psst",
		})
		require.NoError(t, err)

		require.Len(t, deliverer.deliveries, 1)
		assert.Equal(t, "ana@example.com,ben@example.com", deliverer.deliveries[0].Recipients)
	})

	t.Run("rejects unaddressable messages before rate limiting", func(t *testing.T) {
		limiter := ratelimit.New(1, time.Minute)
		handler, deliverer, _ := setupTestHandler(t, limiter)

		err := handler.SendMessage(ctx, OutboundMessage{Kind: "broadcast", To: []string{"x"}})
		assert.Error(t, err)

		err = handler.SendMessage(ctx, OutboundMessage{Kind: KindStream})
		assert.Error(t, err)

		// The malformed attempts did not consume the budget.
		err = handler.SendMessage(ctx, OutboundMessage{Kind: KindStream, To: []string{"general"}, Content: "ok"})
		require.NoError(t, err)
		assert.Len(t, deliverer.deliveries, 1)
	})

	t.Run("denied send returns rate limit error and sends nothing", func(t *testing.T) {
		limiter := ratelimit.New(2, time.Minute)
		handler, deliverer, _ := setupTestHandler(t, limiter)

		msg := OutboundMessage{Kind: KindStream, To: []string{"general"}, Content: "hi"}
		require.NoError(t, handler.SendMessage(ctx, msg))
		require.NoError(t, handler.SendMessage(ctx, msg))

		err := handler.SendMessage(ctx, msg)
		require.Error(t, err)

		var rlErr *ratelimit.Error
		require.True(t, errors.As(err, &rlErr))
		assert.Equal(t, 2, rlErr.Burst)
		assert.Len(t, deliverer.deliveries, 2)
	})

	t.Run("delivery errors propagate unchanged", func(t *testing.T) {
		handler, deliverer, _ := setupTestHandler(t, nil)
		deliverer.err = errors.New("pipeline unavailable")

		err := handler.SendMessage(ctx, OutboundMessage{Kind: KindStream, To: []string{"general"}, Content: "hi"})
		assert.Same(t, deliverer.err, err)
	})
}

func TestSendReply(t *testing.T) {
	ctx := context.Background()

	t.Run("private original replies to the full recipient set", func(t *testing.T) {
		handler, deliverer, _ := setupTestHandler(t, nil)

		original := &IncomingMessage{
			Kind:        KindPrivate,
			SenderEmail: "ana@example.com",
			Recipients:  []string{"ana@example.com", "ben@example.com", "echo-bot@example.com"},
			Content:     "@echo hi",
		}

		require.NoError(t, handler.SendReply(ctx, original, "hi back"))

		require.Len(t, deliverer.deliveries, 1)
		d := deliverer.deliveries[0]
		assert.Equal(t, KindPrivate, d.Kind)
		assert.Equal(t, "ana@example.com,ben@example.com,echo-bot@example.com", d.Recipients)
		assert.Empty(t, d.Subject)
		assert.Equal(t, "hi back", d.Content)
	})

	t.Run("stream original replies to the same stream and subject", func(t *testing.T) {
		handler, deliverer, _ := setupTestHandler(t, nil)

		original := &IncomingMessage{
			Kind:       KindStream,
			Recipients: []string{"general"},
			Subject:    "daily standup",
			Content:    "@echo status?",
		}

		require.NoError(t, handler.SendReply(ctx, original, "all green"))

		require.Len(t, deliverer.deliveries, 1)
		d := deliverer.deliveries[0]
		assert.Equal(t, KindStream, d.Kind)
		assert.Equal(t, "general", d.Recipients)
		assert.Equal(t, "daily standup", d.Subject)
	})

	t.Run("nil original is rejected", func(t *testing.T) {
		handler, _, _ := setupTestHandler(t, nil)
		assert.Error(t, handler.SendReply(ctx, nil, "hi"))
	})

	t.Run("replies are rate limited like sends", func(t *testing.T) {
		limiter := ratelimit.New(1, time.Minute)
		handler, deliverer, _ := setupTestHandler(t, limiter)

		original := &IncomingMessage{Kind: KindStream, Recipients: []string{"general"}, Subject: "s"}
		require.NoError(t, handler.SendReply(ctx, original, "one"))

		err := handler.SendReply(ctx, original, "two")
		var rlErr *ratelimit.Error
		require.True(t, errors.As(err, &rlErr))
		assert.Len(t, deliverer.deliveries, 1)
	})
}

func TestGetConfigInfo(t *testing.T) {
	t.Run("section defaults to the bot name", func(t *testing.T) {
		handler, _, configs := setupTestHandler(t, nil)
		configs.sections["weather/weather"] = map[string]string{"api_key": "k"}

		info, err := handler.GetConfigInfo("weather", "")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"api_key": "k"}, info)
	})

	t.Run("explicit section overrides the default", func(t *testing.T) {
		handler, _, configs := setupTestHandler(t, nil)
		configs.sections["weather/auth"] = map[string]string{"token": "t"}

		info, err := handler.GetConfigInfo("weather", "auth")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"token": "t"}, info)
	})

	t.Run("loader errors are reported", func(t *testing.T) {
		handler, _, configs := setupTestHandler(t, nil)
		configs.err = errors.New("no such bot")

		_, err := handler.GetConfigInfo("ghost", "")
		assert.Same(t, configs.err, err)
	})

	t.Run("fails without a config loader", func(t *testing.T) {
		handler, err := New(testIdentity(), setupTestStore(t), nil, &fakeDeliverer{}, nil)
		require.NoError(t, err)

		_, err = handler.GetConfigInfo("weather", "")
		assert.Error(t, err)
	})
}

func TestHandlerStorage(t *testing.T) {
	handler, _, _ := setupTestHandler(t, nil)
	ctx := context.Background()

	require.NoError(t, handler.Storage().Put(ctx, "seen", "1"))

	value, err := handler.Storage().Get(ctx, "seen")
	require.NoError(t, err)
	assert.Equal(t, "1", value)
}
