package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	Reference string `json:"reference"`
	Count     int    `json:"count"`
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestResolveRunsOnceAndReplays(t *testing.T) {
	g := NewGuard[result](quietLogger(), NewMemoryStore())
	var calls int32
	action := func(context.Context) (result, error) {
		n := atomic.AddInt32(&calls, 1)
		return result{Reference: "PAY-1", Count: int(n)}, nil
	}

	first, replayed, err := g.Resolve(context.Background(), "order-1", action)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := g.Resolve(context.Background(), "order-1", action)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls)
}

func TestResolveDoesNotStoreFailures(t *testing.T) {
	g := NewGuard[result](quietLogger(), NewMemoryStore())
	boom := errors.New("out of stock")

	_, _, err := g.Resolve(context.Background(), "payment-1", func(context.Context) (result, error) {
		return result{}, boom
	})
	require.ErrorIs(t, err, boom)

	got, replayed, err := g.Resolve(context.Background(), "payment-1", func(context.Context) (result, error) {
		return result{Reference: "RES-1"}, nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "RES-1", got.Reference)
}

func TestResolveConcurrentDuplicatesAgree(t *testing.T) {
	g := NewGuard[result](quietLogger(), NewMemoryStore())
	var calls int32
	action := func(context.Context) (result, error) {
		n := atomic.AddInt32(&calls, 1)
		time.Sleep(5 * time.Millisecond)
		return result{Count: int(n)}, nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, _, err := g.Resolve(context.Background(), "order-42", action)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
}

// conflictStore simulates another process winning the write between lookup and put.
type conflictStore struct {
	*MemoryStore
	winner []byte
}

func (s *conflictStore) PutIfAbsent(ctx context.Context, key string, _ []byte) (bool, error) {
	_, _ = s.MemoryStore.PutIfAbsent(ctx, key, s.winner)
	return false, nil
}

func TestResolveConflictReturnsWinner(t *testing.T) {
	store := &conflictStore{MemoryStore: NewMemoryStore(), winner: []byte(`{"reference":"PAY-winner","count":7}`)}
	g := NewGuard[result](quietLogger(), store)

	got, replayed, err := g.Resolve(context.Background(), "order-9", func(context.Context) (result, error) {
		return result{Reference: "PAY-loser"}, nil
	})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, result{Reference: "PAY-winner", Count: 7}, got)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s := NewRedisStore(rdb, time.Hour)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := s.PutIfAbsent(ctx, "order-1", []byte("a"))
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.PutIfAbsent(ctx, "order-1", []byte("b"))
	require.NoError(t, err)
	assert.False(t, stored)

	b, ok, err := s.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", string(b))
	assert.True(t, mr.Exists("idem:order-1"))

	mr.FastForward(2 * time.Hour)
	_, ok, err = s.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
