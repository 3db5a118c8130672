package cache

import (
	"context"
	"time"
)

// Tiered reads L1 then L2 and promotes L2 hits into L1. Writes and evictions go to both.
type Tiered struct {
	l1 Cache
	l2 Cache
}

func NewTiered(l1, l2 Cache) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if b, ok := t.l1.Get(ctx, key); ok {
		return b, true
	}
	b, ok := t.l2.Get(ctx, key)
	if !ok {
		return nil, false
	}
	t.l1.Put(ctx, key, b, 0)
	return b, true
}

func (t *Tiered) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	t.l2.Put(ctx, key, value, ttl)
	t.l1.Put(ctx, key, value, ttl)
}

func (t *Tiered) Evict(ctx context.Context, key string) {
	t.l1.Evict(ctx, key)
	t.l2.Evict(ctx, key)
}
