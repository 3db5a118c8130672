package messaging

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher routes each event to its family topic, keyed by order id.
type KafkaPublisher struct {
	w Writer
}

func NewKafkaPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e events.Event) error {
	msg, err := Message(ctx, e)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", e.Meta().EventType, err)
	}
	return nil
}

// Message builds the kafka record for e, carrying the trace context of ctx.
func Message(ctx context.Context, e events.Event) (kafka.Message, error) {
	b, err := events.Encode(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", e.Meta().EventType, err)
	}
	meta := e.Meta()
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(meta.EventType)},
		{Key: "event_version", Value: []byte(strconv.Itoa(meta.Version))},
	}
	return kafka.Message{
		Topic:   events.TopicFor(meta.EventType),
		Key:     []byte(e.CorrelationID()),
		Value:   b,
		Headers: tracing.InjectKafkaHeaders(ctx, headers),
		Time:    meta.OccurredOn,
	}, nil
}
