package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the shared tier.
type Redis struct {
	log    *slog.Logger
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(log *slog.Logger, rdb redis.UniversalClient) *Redis {
	return &Redis{log: log, rdb: rdb, prefix: "bff:"}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warn("l2 cache read failed", "key", key, "err", err)
		return nil, false
	}
	return b, true
}

func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.rdb.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.log.Warn("l2 cache write failed", "key", key, "err", err)
	}
}

func (r *Redis) Evict(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.prefix+key).Err(); err != nil {
		r.log.Warn("l2 cache evict failed", "key", key, "err", err)
	}
}
