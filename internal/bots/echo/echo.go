// Package echo is a small embedded bot used to exercise the full handler
// surface: it counts the messages it has seen in bot storage, reads an
// optional greeting from its config file, and replies to every message.
package echo

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/warren-hq/warren/internal/registry"
	"github.com/warren-hq/warren/pkg/bothandler"
	"github.com/warren-hq/warren/pkg/statestore"
)

// ServiceName is the registry name of this bot.
const ServiceName = "echo"

// counterKey is the storage key holding the number of handled messages.
const counterKey = "messages_seen"

// Bot echoes incoming messages back to where they came from.
type Bot struct {
	mu       sync.Mutex
	greeting string
}

// New creates an echo bot.
func New() *Bot {
	return &Bot{greeting: "Echo"}
}

// Factory adapts New to the registry contract.
func Factory() registry.Bot {
	return New()
}

// Initialize reads the optional greeting from the bot's config section.
// A missing config file keeps the default greeting; it is not an error.
func (b *Bot) Initialize(_ context.Context, handler *bothandler.Handler) error {
	info, err := handler.GetConfigInfo(ServiceName, "")
	if err != nil {
		log.Printf("[WARN] echo bot: no usable config, keeping default greeting: %v", err)
		return nil
	}
	if g := info["greeting"]; g != "" {
		b.greeting = g
	}
	return nil
}

// HandleMessage bumps the stored message counter and replies with the
// greeting, the counter, and the original content.
func (b *Bot) HandleMessage(ctx context.Context, msg *bothandler.IncomingMessage, handler *bothandler.Handler) error {
	// Serialize the read-modify-write so overlapping invocations cannot
	// lose counter increments.
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := 0
	stored, err := handler.Storage().Get(ctx, counterKey)
	switch {
	case err == nil:
		seen, err = strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("corrupt message counter %q: %w", stored, err)
		}
	case statestore.IsNotFound(err):
		// First message for this bot.
	default:
		return err
	}

	seen++
	if err := handler.Storage().Put(ctx, counterKey, strconv.Itoa(seen)); err != nil {
		return err
	}

	return handler.SendReply(ctx, msg, fmt.Sprintf("%s #%d: %s", b.greeting, seen, msg.Content))
}
