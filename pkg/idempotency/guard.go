package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"
)

// Guard runs an action at most once per key and replays its stored result afterwards.
// Only successful results are stored; a failed action may be retried by a later delivery.
type Guard[T any] struct {
	log   *slog.Logger
	store Store
	group singleflight.Group
}

func NewGuard[T any](log *slog.Logger, store Store) *Guard[T] {
	return &Guard[T]{log: log, store: store}
}

type outcome[T any] struct {
	value    T
	replayed bool
}

// Resolve returns the stored result for key, or runs action and stores its result.
// The boolean is true when the result was not produced by this call.
func (g *Guard[T]) Resolve(ctx context.Context, key string, action func(context.Context) (T, error)) (T, bool, error) {
	ran := false
	v, err, _ := g.group.Do(key, func() (any, error) {
		ran = true
		return g.resolve(ctx, key, action)
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	out := v.(outcome[T])
	return out.value, out.replayed || !ran, nil
}

func (g *Guard[T]) resolve(ctx context.Context, key string, action func(context.Context) (T, error)) (outcome[T], error) {
	if v, ok, err := g.lookup(ctx, key); err != nil {
		return outcome[T]{}, err
	} else if ok {
		return outcome[T]{value: v, replayed: true}, nil
	}

	v, err := action(ctx)
	if err != nil {
		return outcome[T]{}, err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return outcome[T]{}, fmt.Errorf("idempotency: encode result for %s: %w", key, err)
	}
	stored, err := g.store.PutIfAbsent(ctx, key, b)
	if err != nil {
		// side effects already happened; the caller still gets the fresh result
		g.log.Error("idempotency result not stored", "key", key, "err", err)
		return outcome[T]{value: v}, nil
	}
	if !stored {
		winner, ok, err := g.lookup(ctx, key)
		if err != nil || !ok {
			g.log.Warn("idempotency conflict without readable winner", "key", key, "err", err)
			return outcome[T]{value: v}, nil
		}
		return outcome[T]{value: winner, replayed: true}, nil
	}
	return outcome[T]{value: v}, nil
}

func (g *Guard[T]) lookup(ctx context.Context, key string) (T, bool, error) {
	var v T
	b, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return v, false, fmt.Errorf("idempotency: lookup %s: %w", key, err)
	}
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("idempotency: decode stored result for %s: %w", key, err)
	}
	return v, true, nil
}
