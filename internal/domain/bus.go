package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler EventHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	// Reply answers an event received through Request.
	Reply(ctx context.Context, evt *Event, payload []byte) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// EventHandler processes incoming events.
type EventHandler func(ctx context.Context, evt *Event) error

// Event is the envelope carried on the bus.
type Event struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// MetadataReplyTo carries the reply address of a request event.
const MetadataReplyTo = "replyTo"

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl,omitempty"`
	NATSToken         string `json:"-"`
	NATSMaxReconnects int    `json:"natsMaxReconnects,omitempty"`
	NATSReconnectWait int    `json:"natsReconnectWait,omitempty"` // seconds
}

// Topic names for the extraction pipeline.
const (
	TopicMessageReceived = "parsepay.sms.received"
	TopicExtracted       = "parsepay.sms.extracted"
	TopicRejected        = "parsepay.sms.rejected"

	// TopicExtractRequest is answered synchronously with an ExtractionResponse.
	TopicExtractRequest = "parsepay.sms.extract"
)
