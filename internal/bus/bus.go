package bus

import (
	"context"
	"fmt"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" returns an in-process ChannelBus, "nats" a NATSBus and
// "none" a bus that drops every event.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	case "none":
		return NopBus{}, nil

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// NopBus discards published events.
type NopBus struct{}

// Publish implements domain.EventBus.
func (NopBus) Publish(ctx context.Context, topic string, payload []byte) error { return nil }

// Subscribe implements domain.EventBus; the handler is never called.
func (NopBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	return nopSubscription(topic), nil
}

// Ping implements domain.EventBus.
func (NopBus) Ping(ctx context.Context) error { return nil }

// Close implements domain.EventBus.
func (NopBus) Close() error { return nil }

type nopSubscription string

func (nopSubscription) Unsubscribe() error { return nil }

func (s nopSubscription) Topic() string { return string(s) }
