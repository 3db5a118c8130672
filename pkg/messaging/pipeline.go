package messaging

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// ErrIgnored is returned by handlers for event types they do not act on.
var ErrIgnored = errors.New("messaging: event ignored")

type Handler func(ctx context.Context, e events.Event) error

type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomePoison    Outcome = "poison"
	OutcomeFailed    Outcome = "failed"
)

type Metrics struct {
	events *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fulfillment_consumer_events_total",
			Help: "Consumed events by consumer and outcome.",
		}, []string{"consumer", "outcome"}),
	}
	reg.MustRegister(m.events)
	return m
}

// Pipeline decodes a raw message and hands it to its handler. Every outcome is
// acknowledged by the caller; redelivery is left to producers, not to this consumer.
type Pipeline struct {
	name    string
	log     *slog.Logger
	handle  Handler
	metrics *Metrics
}

func NewPipeline(name string, log *slog.Logger, m *Metrics, h Handler) *Pipeline {
	return &Pipeline{name: name, log: log.With("consumer", name), handle: h, metrics: m}
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Process(ctx context.Context, value []byte) Outcome {
	o := p.process(ctx, value)
	p.metrics.events.WithLabelValues(p.name, string(o)).Inc()
	return o
}

func (p *Pipeline) process(ctx context.Context, value []byte) Outcome {
	ev, err := events.Decode(value)
	switch {
	case errors.Is(err, events.ErrUnknownType):
		p.log.Debug("unknown event type ignored", "err", err)
		return OutcomeIgnored
	case err != nil:
		p.log.Error("poison message", "err", err)
		return OutcomePoison
	}

	meta := ev.Meta()
	err = p.handle(ctx, ev)
	switch {
	case errors.Is(err, ErrIgnored):
		return OutcomeIgnored
	case err != nil:
		p.log.Error("event handling failed",
			"event_id", meta.EventID, "event_type", meta.EventType, "order_id", ev.CorrelationID(), "err", err)
		return OutcomeFailed
	}
	p.log.Info("event handled", "event_id", meta.EventID, "event_type", meta.EventType, "order_id", ev.CorrelationID())
	return OutcomeProcessed
}
