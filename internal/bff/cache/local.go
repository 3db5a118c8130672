package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Local is the bounded in-process tier. A hit extends the entry's lifetime.
type Local struct {
	ttl time.Duration
	c   *ttlcache.Cache[string, []byte]
}

func NewLocal(capacity uint64, ttl time.Duration) *Local {
	c := ttlcache.New[string, []byte](
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithCapacity[string, []byte](capacity),
	)
	go c.Start()
	return &Local{ttl: ttl, c: c}
}

func (l *Local) Get(_ context.Context, key string) ([]byte, bool) {
	item := l.c.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Put stores value for the shorter of ttl and the tier's own lifetime.
func (l *Local) Put(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > l.ttl {
		ttl = l.ttl
	}
	l.c.Set(key, value, ttl)
}

func (l *Local) Evict(_ context.Context, key string) {
	l.c.Delete(key)
}

func (l *Local) Len() int { return l.c.Len() }

// Close stops the expiry loop.
func (l *Local) Close() { l.c.Stop() }
