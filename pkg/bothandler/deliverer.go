package bothandler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// OutboundChannel returns the Pub/Sub channel name carrying delivered
// messages for an instance.
// Pattern: warren:{instance_name}:outbound
func OutboundChannel(instanceName string) string {
	return fmt.Sprintf("warren:%s:outbound", instanceName)
}

// DeliveredMessage is the wire form of a message handed to the delivery
// pipeline, published as JSON on the instance's outbound channel.
type DeliveredMessage struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"sender_id"`
	SenderEmail string      `json:"sender_email"`
	SenderName  string      `json:"sender_name"`
	Realm       string      `json:"realm"`
	Kind        MessageKind `json:"kind"`
	Recipients  string      `json:"recipients"`
	Subject     string      `json:"subject,omitempty"`
	Content     string      `json:"content"`
	SentAtMs    int64       `json:"sent_at_ms"`
}

// RedisDeliverer publishes outbound messages to the instance's outbound
// Pub/Sub channel, where the platform's delivery pipeline consumes them.
// All channels are namespaced with the instance name.
type RedisDeliverer struct {
	rdb          *redis.Client
	instanceName string
}

// NewRedisDeliverer creates a deliverer for the specified instance.
// Returns an error if instanceName is empty.
func NewRedisDeliverer(redisOpts *redis.Options, instanceName string) (*RedisDeliverer, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &RedisDeliverer{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (d *RedisDeliverer) Close() error {
	return d.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (d *RedisDeliverer) Ping(ctx context.Context) error {
	return d.rdb.Ping(ctx).Err()
}

// Deliver publishes the message to the outbound channel. Implements
// Deliverer. Redis Pub/Sub is at-most-once: a pipeline that is down misses
// the message, which matches the platform's treatment of dropped
// deliveries upstream of this core.
func (d *RedisDeliverer) Deliver(ctx context.Context, sender Identity, kind MessageKind, recipients, subject, content string) error {
	msg := DeliveredMessage{
		ID:          uuid.New().String(),
		SenderID:    sender.ID,
		SenderEmail: sender.Email,
		SenderName:  sender.FullName,
		Realm:       sender.Realm,
		Kind:        kind,
		Recipients:  recipients,
		Subject:     subject,
		Content:     content,
		SentAtMs:    time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	channel := OutboundChannel(d.instanceName)
	if err := d.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish outbound message: %w", err)
	}

	return nil
}
