// Package bus carries run and sweep events between the API, the analysis
// service and workers, over Go channels or NATS.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/lossim/internal/domain"
)

var (
	errTenantRequired = errors.New("tenantID is required")
	errClosed         = errors.New("bus is closed")
)

// ReplyToKey is the metadata key holding a request's reply address.
const ReplyToKey = "reply_to"

// defaultRequestTimeout bounds Request when ctx carries no deadline.
const defaultRequestTimeout = 30 * time.Second

// New creates an event bus from configuration: "channel" for the community
// tier, "nats" for pro.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

type responder interface {
	respond(req *domain.Message, payload []byte) error
}

// Respond answers a message received through Request. It is a no-op for
// messages that carry no reply address.
func Respond(b domain.EventBus, req *domain.Message, payload []byte) error {
	if req.Metadata[ReplyToKey] == "" {
		return nil
	}
	r, ok := b.(responder)
	if !ok {
		return fmt.Errorf("bus %T does not support replies", b)
	}
	return r.respond(req, payload)
}
