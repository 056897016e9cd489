package domain

import "context"

// Topics published by the service and the sweep worker. Every topic is
// scoped to a tenant by the bus implementation.
const (
	TopicRunCompleted   = "lossim.run.completed"
	TopicAppetiteBreach = "lossim.appetite.breach"
	TopicSweepRequested = "lossim.sweep.requested"
	TopicSweepCompleted = "lossim.sweep.completed"
)

// BreachEvent is the lossim.appetite.breach payload.
type BreachEvent struct {
	RunID      string       `json:"runId"`
	TenantID   string       `json:"tenantId"`
	Params     ParameterSet `json:"params"`
	KPIs       KPISummary   `json:"kpis"`
	Assessment *Assessment  `json:"assessment"`
}

// EventBus carries run and sweep events between the service, the sweep
// worker and external consumers. The community tier runs it on channels,
// the pro tier on NATS.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe delivers a tenant's messages on topic to handler until the
	// subscription or ctx ends.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Request publishes and waits for the first reply.
	Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the bus envelope. Payload is JSON produced by the publisher.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is an active topic subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the bus.
type EventBusConfig struct {
	// "channel" or "nats"
	Type string `json:"type" yaml:"type"`

	ChannelBufferSize int `json:"channelBufferSize" yaml:"channel_buffer_size"`

	NATSUrl           string `json:"natsUrl" yaml:"nats_url"`
	NATSToken         string `json:"-" yaml:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" yaml:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" yaml:"nats_reconnect_wait"` // seconds
}
