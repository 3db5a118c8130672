package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(slog.New(slog.NewTextHandler(io.Discard, nil)), rdb), mr
}

func TestLocalCapacityAndTTL(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(2, time.Minute)
	defer l.Close()

	l.Put(ctx, "a", []byte("1"), time.Hour)
	l.Put(ctx, "b", []byte("2"), 0)
	l.Put(ctx, "c", []byte("3"), 0)
	assert.Equal(t, 2, l.Len())
	_, ok := l.Get(ctx, "a")
	assert.False(t, ok, "oldest entry is dropped at capacity")

	// reads refresh the lifetime, so wait without touching the entry
	l.Put(ctx, "short", []byte("x"), 20*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	_, ok = l.Get(ctx, "short")
	assert.False(t, ok)

	l.Evict(ctx, "c")
	_, ok = l.Get(ctx, "c")
	assert.False(t, ok)
}

func TestRedisTier(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)

	r.Put(ctx, "k", []byte("v"), time.Hour)
	b, ok := r.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(b))
	assert.True(t, mr.Exists("bff:k"))

	mr.FastForward(2 * time.Hour)
	_, ok = r.Get(ctx, "k")
	assert.False(t, ok)

	r.Put(ctx, "k", []byte("v"), time.Hour)
	r.Evict(ctx, "k")
	_, ok = r.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)
	mr.Close()

	r.Put(ctx, "k", []byte("v"), time.Hour)
	_, ok := r.Get(ctx, "k")
	assert.False(t, ok)
	r.Evict(ctx, "k")
}

func TestTieredPromotesAndEvictsBoth(t *testing.T) {
	ctx := context.Background()
	l1 := NewLocal(10, time.Minute)
	defer l1.Close()
	l2, _ := newRedis(t)
	c := NewTiered(l1, l2)

	l2.Put(ctx, OrderDetailsKey("o-1"), []byte("view"), time.Hour)
	b, ok := c.Get(ctx, OrderDetailsKey("o-1"))
	require.True(t, ok)
	assert.Equal(t, "view", string(b))
	_, ok = l1.Get(ctx, OrderDetailsKey("o-1"))
	assert.True(t, ok, "l2 hit is promoted")

	c.Put(ctx, CustomerOrdersKey("c-1"), []byte("list"), time.Hour)
	_, ok = l2.Get(ctx, CustomerOrdersKey("c-1"))
	assert.True(t, ok)

	c.Evict(ctx, CustomerOrdersKey("c-1"))
	c.Evict(ctx, OrderDetailsKey("o-1"))
	_, ok = c.Get(ctx, CustomerOrdersKey("c-1"))
	assert.False(t, ok)
	_, ok = c.Get(ctx, OrderDetailsKey("o-1"))
	assert.False(t, ok)
}
