package bothandler

import (
	"context"
	"fmt"
	"strings"

	"github.com/warren-hq/warren/pkg/ratelimit"
	"github.com/warren-hq/warren/pkg/statestore"
)

// Deliverer hands finished messages to the platform's delivery pipeline.
// For stream messages recipients is the stream name as-is; for private
// messages it is the addresses joined with "," (the platform's
// multi-recipient format). Delivery errors propagate to the caller
// unchanged; this layer does not interpret them.
type Deliverer interface {
	Deliver(ctx context.Context, sender Identity, kind MessageKind, recipients, subject, content string) error
}

// ConfigLoader resolves per-bot configuration sections. Implementations
// load the resource fresh on every call; no caching is implied.
type ConfigLoader interface {
	LoadSection(botName, section string) (map[string]string, error)
}

// Handler is the only surface embedded bot logic may call. It binds one
// Identity to a rate-limited send path, bot-scoped storage, and per-bot
// configuration. Handlers are safe for concurrent use, so one handler can
// serve overlapping invocations of the same bot.
type Handler struct {
	identity  Identity
	limiter   *ratelimit.Limiter
	storage   *statestore.Store
	deliverer Deliverer
	configs   ConfigLoader
}

// New creates a handler bound to the given identity. A nil limiter gets
// the platform default budget (20 actions per 5 seconds).
func New(identity Identity, storage *statestore.Store, limiter *ratelimit.Limiter, deliverer Deliverer, configs ConfigLoader) (*Handler, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bot identity: %w", err)
	}
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultBurst, ratelimit.DefaultWindow)
	}

	return &Handler{
		identity:  identity,
		limiter:   limiter,
		storage:   storage,
		deliverer: deliverer,
		configs:   configs,
	}, nil
}

// FullName returns the bound identity's display name.
func (h *Handler) FullName() string {
	return h.identity.FullName
}

// Email returns the bound identity's address.
func (h *Handler) Email() string {
	return h.identity.Email
}

// Storage returns the bot-scoped state store.
func (h *Handler) Storage() *statestore.Store {
	return h.storage
}

// SendMessage passes an outbound message through the rate limiter and, if
// admitted, normalizes its recipients and forwards it to the delivery
// pipeline with the bound identity as sender.
//
// A denied attempt returns a *ratelimit.Error and nothing is sent; the
// failure is terminal for the current action and must not be swallowed.
func (h *Handler) SendMessage(ctx context.Context, msg OutboundMessage) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid outbound message: %w", err)
	}

	if !h.limiter.Allow() {
		return h.limiter.LimitError()
	}

	var recipients string
	if msg.Kind == KindStream {
		recipients = msg.To[0]
	} else {
		recipients = strings.Join(msg.To, ",")
	}

	return h.deliverer.Deliver(ctx, h.identity, msg.Kind, recipients, msg.Subject, msg.Content)
}

// SendReply derives a reply's addressing from the original message: a
// private original is answered privately to its full recipient set, a
// stream original is answered on the same stream and subject. Delegates to
// SendMessage, so the reply is rate-limited like any other send.
func (h *Handler) SendReply(ctx context.Context, original *IncomingMessage, response string) error {
	if original == nil {
		return fmt.Errorf("original message is required")
	}

	if original.Kind == KindPrivate {
		return h.SendMessage(ctx, OutboundMessage{
			Kind:    KindPrivate,
			To:      original.Recipients,
			Content: response,
		})
	}

	return h.SendMessage(ctx, OutboundMessage{
		Kind:    KindStream,
		To:      original.Recipients,
		Subject: original.Subject,
		Content: response,
	})
}

// GetConfigInfo loads the configuration section for botName, defaulting
// the section to the bot's own name. Loader errors (missing resource,
// malformed file) are reported to the caller unchanged.
func (h *Handler) GetConfigInfo(botName, section string) (map[string]string, error) {
	if h.configs == nil {
		return nil, fmt.Errorf("no config loader configured")
	}
	if section == "" {
		section = botName
	}
	return h.configs.LoadSection(botName, section)
}
