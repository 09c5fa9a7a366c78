// Package registry maps embedded-bot service names to handler factories.
// The registry is populated explicitly at startup; looking up a service is
// a plain map read, with no dynamic code loading involved.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warren-hq/warren/pkg/bothandler"
)

// Bot is the contract embedded bot handlers implement. Initialize runs
// once when the runtime wires the bot up; HandleMessage runs for every
// incoming message routed to the bot. Both receive the capability-
// restricted handler, never the platform identity itself.
type Bot interface {
	Initialize(ctx context.Context, handler *bothandler.Handler) error
	HandleMessage(ctx context.Context, msg *bothandler.IncomingMessage, handler *bothandler.Handler) error
}

// Factory constructs a fresh Bot instance.
type Factory func() Bot

// Registry is a concurrency-safe map from service name to bot factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given service name. Registering the
// same name twice is a startup bug and returns an error.
func (r *Registry) Register(serviceName string, factory Factory) error {
	if serviceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for service %q cannot be nil", serviceName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[serviceName]; exists {
		return fmt.Errorf("service %q is already registered", serviceName)
	}
	r.factories[serviceName] = factory
	return nil
}

// Lookup returns the factory for a service name, if registered.
func (r *Registry) Lookup(serviceName string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[serviceName]
	return factory, ok
}

// Contains reports whether a service name is a known embedded bot.
func (r *Registry) Contains(serviceName string) bool {
	_, ok := r.Lookup(serviceName)
	return ok
}

// Names returns all registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
