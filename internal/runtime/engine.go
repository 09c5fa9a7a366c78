// Package runtime hosts embedded bots: it subscribes to the instance's
// incoming-event channel, resolves each event to a registered bot, and
// invokes the bot with a capability-restricted handler bound to the bot's
// identity. Bot failures are logged and surfaced per invocation; they never
// stop the runtime.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warren-hq/warren/internal/registry"
	"github.com/warren-hq/warren/pkg/bothandler"
	"github.com/warren-hq/warren/pkg/ratelimit"
	"github.com/warren-hq/warren/pkg/statestore"
)

// Config holds the engine's runtime tunables.
type Config struct {
	// InstanceName namespaces all Redis keys and channels.
	InstanceName string

	// Workers is the number of concurrent bot invocations (default 4).
	Workers int

	// RateBurst and RateWindow cap each bot's outbound actions. Zero
	// values fall back to the platform defaults (20 per 5s).
	RateBurst  int
	RateWindow time.Duration
}

// hostedBot is one wired-up embedded bot: the instance produced by its
// factory plus the handler bound to its identity. The handler (and with it
// the rate limiter and storage lock) persists across invocations.
type hostedBot struct {
	bot     registry.Bot
	handler *bothandler.Handler
}

// Engine is the bot execution runtime. It manages a dispatcher goroutine
// feeding a bounded worker pool, and shuts down gracefully by draining
// in-flight invocations on context cancellation.
type Engine struct {
	config    Config
	rdb       *redis.Client
	registry  *registry.Registry
	stores    *statestore.Manager
	deliverer bothandler.Deliverer
	configs   bothandler.ConfigLoader

	mu   sync.RWMutex
	bots map[string]*hostedBot
	wg   sync.WaitGroup
}

// New creates an engine for the specified instance. The engine owns its
// Redis connection (used for the event subscription); state storage and
// delivery arrive as already-constructed collaborators.
func New(config Config, redisOpts *redis.Options, reg *registry.Registry, stores *statestore.Manager, deliverer bothandler.Deliverer, configs bothandler.ConfigLoader) (*Engine, error) {
	if config.InstanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if stores == nil {
		return nil, fmt.Errorf("store manager is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}

	return &Engine{
		config:    config,
		rdb:       redis.NewClient(redisOpts),
		registry:  reg,
		stores:    stores,
		deliverer: deliverer,
		configs:   configs,
		bots:      make(map[string]*hostedBot),
	}, nil
}

// Close closes the engine's Redis connection. Implements io.Closer.
func (e *Engine) Close() error {
	return e.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for startup health checks.
func (e *Engine) Ping(ctx context.Context) error {
	return e.rdb.Ping(ctx).Err()
}

// Host wires up one embedded bot: looks up its factory by the identity's
// stable ID, builds the capability-restricted handler, and runs the bot's
// Initialize hook. Must be called before Start.
func (e *Engine) Host(ctx context.Context, identity bothandler.Identity) error {
	factory, ok := e.registry.Lookup(identity.ID)
	if !ok {
		return fmt.Errorf("service %q is not a registered embedded bot", identity.ID)
	}

	handler, err := bothandler.New(
		identity,
		e.stores.For(identity.ID),
		ratelimit.New(e.config.RateBurst, e.config.RateWindow),
		e.deliverer,
		e.configs,
	)
	if err != nil {
		return fmt.Errorf("failed to build handler for service %q: %w", identity.ID, err)
	}

	bot := factory()
	if err := bot.Initialize(ctx, handler); err != nil {
		return fmt.Errorf("failed to initialize bot %q: %w", identity.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.bots[identity.ID]; exists {
		return fmt.Errorf("service %q is already hosted", identity.ID)
	}
	e.bots[identity.ID] = &hostedBot{bot: bot, handler: handler}

	log.Printf("[INFO] Hosting embedded bot service=%s full_name=%q", identity.ID, identity.FullName)
	return nil
}

// HostedServices returns the service names currently hosted, for status
// output.
func (e *Engine) HostedServices() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.bots))
	for name := range e.bots {
		names = append(names, name)
	}
	return names
}

// Start subscribes to the instance's event channel and blocks until the
// context is cancelled. Events are decoded by a dispatcher goroutine and
// fanned out to a bounded worker pool.
//
// Graceful shutdown sequence:
//  1. Context is cancelled (typically via SIGTERM).
//  2. The subscription is closed, ending the dispatcher's receive loop.
//  3. The dispatcher closes the work queue; workers drain what remains.
//  4. Start returns once all goroutines complete.
func (e *Engine) Start(ctx context.Context) error {
	log.Printf("[INFO] Bot runtime starting instance=%s workers=%d bots=%d",
		e.config.InstanceName, e.config.Workers, len(e.bots))

	pubsub := e.rdb.Subscribe(ctx, EventsChannel(e.config.InstanceName))

	// Confirm the subscription before reporting readiness; a typo'd Redis
	// address should fail Start, not drop events silently.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to event channel: %w", err)
	}

	workQueue := make(chan *Event, e.config.Workers)

	e.wg.Add(1)
	go e.dispatch(ctx, pubsub, workQueue)

	for i := 0; i < e.config.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i, workQueue)
	}

	<-ctx.Done()
	log.Printf("[INFO] Shutdown signal received, initiating graceful shutdown")

	// Closing the subscription unblocks the dispatcher, which closes the
	// work queue so workers can drain and exit.
	pubsub.Close()
	e.wg.Wait()

	log.Printf("[INFO] All goroutines exited, shutdown complete")
	return nil
}

// dispatch decodes raw Pub/Sub payloads into events and feeds the work
// queue. Undecodable payloads are logged and skipped; the subscription
// continues.
func (e *Engine) dispatch(ctx context.Context, pubsub *redis.PubSub, workQueue chan<- *Event) {
	defer e.wg.Done()
	defer close(workQueue)
	defer log.Printf("[DEBUG] Dispatcher exited cleanly")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("[ERROR] Failed to unmarshal event, skipping: %v", err)
				continue
			}
			if err := event.Validate(); err != nil {
				log.Printf("[ERROR] Dropping invalid event: %v", err)
				continue
			}

			select {
			case workQueue <- &event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// worker invokes bots for queued events until the queue closes.
func (e *Engine) worker(ctx context.Context, id int, workQueue <-chan *Event) {
	defer e.wg.Done()
	defer log.Printf("[DEBUG] Worker %d exited cleanly", id)

	for event := range workQueue {
		e.handleEvent(ctx, event)
	}
}

// handleEvent routes one event to its bot. Failures are logged with their
// cause and never propagate: a misbehaving bot must not take down the
// runtime or its neighbours.
func (e *Engine) handleEvent(ctx context.Context, event *Event) {
	e.mu.RLock()
	hosted, ok := e.bots[event.Service]
	e.mu.RUnlock()

	if !ok {
		log.Printf("[WARN] No hosted bot for service=%s, skipping event=%s", event.Service, event.ID)
		return
	}

	start := time.Now()
	err := hosted.bot.HandleMessage(ctx, &event.Message, hosted.handler)
	duration := time.Since(start)

	switch {
	case err == nil:
		log.Printf("[INFO] Bot invocation completed service=%s event=%s duration=%s",
			event.Service, event.ID, duration)
	case isRateLimited(err):
		log.Printf("[ERROR] Bot invocation aborted by rate limit service=%s event=%s: %v",
			event.Service, event.ID, err)
	case statestore.IsQuotaExceeded(err):
		log.Printf("[ERROR] Bot invocation hit state quota service=%s event=%s: %v",
			event.Service, event.ID, err)
	default:
		log.Printf("[ERROR] Bot invocation failed service=%s event=%s duration=%s: %v",
			event.Service, event.ID, duration, err)
	}
}

func isRateLimited(err error) bool {
	var rlErr *ratelimit.Error
	return errors.As(err, &rlErr)
}
