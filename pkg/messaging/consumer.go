package messaging

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-fulfillment/pkg/tracing"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

// Consumer fans messages out to a fixed set of workers. Messages with the same key
// always land on the same worker, so per-order ordering is kept.
type Consumer struct {
	log      *slog.Logger
	reader   Reader
	pipeline *Pipeline
	workers  int
	tracer   trace.Tracer
}

func NewConsumer(log *slog.Logger, reader Reader, pipeline *Pipeline, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		log:      log.With("consumer", pipeline.Name()),
		reader:   reader,
		pipeline: pipeline,
		workers:  workers,
		tracer:   otel.Tracer("fulfillment-consumer"),
	}
}

// Run blocks until ctx is cancelled or the reader fails. Messages already handed to a
// worker are finished before Run returns. A partition's offset is committed only up to
// the last message with no unfinished predecessor.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	offsets := newOffsetTracker()
	lanes := make([]chan *inflight, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan *inflight, 64)
		wg.Add(1)
		go func(in <-chan *inflight) {
			defer wg.Done()
			for f := range in {
				msgCtx := c.handle(ctx, f.msg)
				offsets.done(f, func(m kafka.Message) { c.commit(msgCtx, m) })
			}
		}(lanes[i])
	}
	defer func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping")
				return nil
			}
			return err
		}
		f := offsets.track(msg)
		select {
		case lanes[c.lane(msg.Key)] <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) lane(key []byte) int {
	if len(key) == 0 || c.workers == 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(c.workers))
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) context.Context {
	// a started handler runs to completion even when shutdown begins
	msgCtx := tracing.ExtractKafkaHeaders(context.WithoutCancel(ctx), msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "consume "+msg.Topic)
	outcome := c.pipeline.Process(msgCtx, msg.Value)
	span.SetAttributes(
		attribute.String("messaging.outcome", string(outcome)),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)
	span.End()
	return msgCtx
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.log.Error("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
	}
}
