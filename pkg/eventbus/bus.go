// Package eventbus is an in-process broker with synchronous delivery, used to run the
// services together without kafka.
package eventbus

import (
	"context"
	"sync"

	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

type Subscriber func(ctx context.Context, payload []byte)

type Message struct {
	Topic   string
	Payload []byte
	Event   events.Event
}

type Bus struct {
	mu        sync.Mutex
	subs      map[string][]Subscriber
	published []Message
	failWith  error
}

func New() *Bus {
	return &Bus{subs: make(map[string][]Subscriber)}
}

func (b *Bus) Subscribe(topic string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], fn)
}

// FailWith makes every later Publish return err without delivering; nil restores delivery.
func (b *Bus) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith = err
}

func (b *Bus) Publish(ctx context.Context, e events.Event) error {
	payload, err := events.Encode(e)
	if err != nil {
		return err
	}
	topic := events.TopicFor(e.Meta().EventType)

	b.mu.Lock()
	if b.failWith != nil {
		err := b.failWith
		b.mu.Unlock()
		return err
	}
	b.published = append(b.published, Message{Topic: topic, Payload: payload, Event: e})
	subs := append([]Subscriber(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(ctx, payload)
	}
	return nil
}

// Deliver hands a raw payload to the subscribers of topic without recording it.
func (b *Bus) Deliver(ctx context.Context, topic string, payload []byte) {
	b.mu.Lock()
	subs := append([]Subscriber(nil), b.subs[topic]...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(ctx, payload)
	}
}

// Redeliver sends every message already published on topic again, in order.
func (b *Bus) Redeliver(ctx context.Context, topic string) {
	for _, m := range b.Published(topic) {
		b.Deliver(ctx, topic, m.Payload)
	}
}

// Published returns the recorded messages, optionally filtered by topic.
func (b *Bus) Published(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Message
	for _, m := range b.published {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// OfType returns the recorded events of type t.
func (b *Bus) OfType(t events.Type) []events.Event {
	var out []events.Event
	for _, m := range b.Published("") {
		if m.Event.Meta().EventType == t {
			out = append(out, m.Event)
		}
	}
	return out
}
