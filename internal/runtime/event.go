package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/warren-hq/warren/pkg/bothandler"
)

// Event is an incoming platform event routed to an embedded bot. The
// platform resolves the target service before the event reaches this
// runtime; Service names the embedded bot the message is for.
type Event struct {
	ID      string                     `json:"id"`
	Service string                     `json:"service"`
	Message bothandler.IncomingMessage `json:"message"`
}

// Validate checks that the event can be routed.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.Service == "" {
		return fmt.Errorf("event service is required")
	}
	if err := e.Message.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid event message: %w", err)
	}
	return nil
}

// EventsChannel returns the Pub/Sub channel name carrying incoming events
// for an instance.
// Pattern: warren:{instance_name}:events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("warren:%s:events", instanceName)
}

// PublishEvent publishes an event to the instance's events channel. Used by
// the platform's event intake and by the `warren send` smoke-test command.
func PublishEvent(ctx context.Context, rdb *redis.Client, instanceName string, event *Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := rdb.Publish(ctx, EventsChannel(instanceName), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
