package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
)

type Appender interface {
	Append(ctx context.Context, r Record) error
}

// Publisher stores events for the relay instead of writing to the broker directly.
type Publisher struct {
	store Appender
}

func NewPublisher(store Appender) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	r, err := NewRecord(ctx, e)
	if err != nil {
		return err
	}
	if err := p.store.Append(ctx, r); err != nil {
		return fmt.Errorf("outbox append %s: %w", r.Type, err)
	}
	return nil
}

// NewRecord encodes e as a pending outbox row carrying the trace headers of ctx.
func NewRecord(ctx context.Context, e events.Event) (Record, error) {
	msg, err := messaging.Message(ctx, e)
	if err != nil {
		return Record{}, err
	}
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Record{
		Topic:     msg.Topic,
		Key:       string(msg.Key),
		Type:      string(e.Meta().EventType),
		Payload:   msg.Value,
		Headers:   headers,
		CreatedAt: time.Now().UTC(),
		Status:    StatusPending,
	}, nil
}
