package outbox

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
)

type Store interface {
	Appender
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Record, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string, maxRetries int) error
}

type Relay struct {
	log        *slog.Logger
	store      Store
	writer     messaging.Writer
	relayID    string
	batchSize  int
	interval   time.Duration
	lease      time.Duration
	maxRetries int
}

func NewRelay(log *slog.Logger, store Store, writer messaging.Writer, relayID string) *Relay {
	return &Relay{
		log:        log.With("relay_id", relayID),
		store:      store,
		writer:     writer,
		relayID:    relayID,
		batchSize:  100,
		interval:   500 * time.Millisecond,
		lease:      5 * time.Second,
		maxRetries: 10,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping")
			return nil
		case <-t.C:
			if _, err := r.Flush(ctx); err != nil {
				r.log.Error("relay flush error", "err", err)
			}
		}
	}
}

// Flush sends one locked batch and reports how many records reached the broker.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })

	ids := make([]int64, 0, len(batch))
	for _, rec := range batch {
		if err := r.writer.WriteMessages(ctx, toMessage(rec)); err != nil {
			r.log.Error("outbox dispatch failed", "record_id", rec.ID, "type", rec.Type, "err", err)
			if err := r.store.MarkFailed(ctx, rec.ID, err.Error(), r.maxRetries); err != nil {
				r.log.Error("outbox mark failed error", "record_id", rec.ID, "err", err)
			}
			continue
		}
		ids = append(ids, rec.ID)
	}
	if len(ids) > 0 {
		if err := r.store.MarkSent(ctx, ids); err != nil {
			return len(ids), err
		}
		r.log.Debug("outbox dispatched", "count", len(ids))
	}
	return len(ids), nil
}

func toMessage(rec Record) kafka.Message {
	headers := make([]kafka.Header, 0, len(rec.Headers))
	for k, v := range rec.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   rec.Topic,
		Key:     []byte(rec.Key),
		Value:   rec.Payload,
		Headers: headers,
		Time:    rec.CreatedAt,
	}
}
