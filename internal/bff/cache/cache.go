// Package cache provides the BFF read cache. Every operation is best effort:
// failures are logged and reported as misses.
package cache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration)
	Evict(ctx context.Context, key string)
}

func CustomerOrdersKey(customerID string) string { return "customer-orders:" + customerID }

func OrderDetailsKey(orderID string) string { return "order-details:" + orderID }
