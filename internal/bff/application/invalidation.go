package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-fulfillment/internal/bff/cache"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// Invalidator evicts the views an event makes stale, in both tiers.
type Invalidator struct {
	log   *slog.Logger
	cache cache.Cache
}

func NewInvalidator(log *slog.Logger, c cache.Cache) *Invalidator {
	return &Invalidator{log: log, cache: c}
}

func (i *Invalidator) HandleEvent(ctx context.Context, e events.Event) error {
	var keys []string
	switch ev := e.(type) {
	case events.OrderCreated:
		keys = []string{cache.CustomerOrdersKey(ev.CustomerID), cache.OrderDetailsKey(ev.AggregateID)}
	case events.OrderStatusChanged:
		keys = []string{cache.CustomerOrdersKey(ev.CustomerID), cache.OrderDetailsKey(ev.AggregateID)}
	case events.PaymentCompleted:
		keys = []string{cache.CustomerOrdersKey(ev.CustomerID), cache.OrderDetailsKey(ev.OrderID)}
	case events.PaymentFailed:
		keys = []string{cache.CustomerOrdersKey(ev.CustomerID), cache.OrderDetailsKey(ev.OrderID)}
	case events.InventoryReserved:
		keys = []string{cache.OrderDetailsKey(ev.OrderID)}
		if ev.CustomerID != "" {
			keys = append(keys, cache.CustomerOrdersKey(ev.CustomerID))
		}
	case events.InventoryReleased:
		// the customer list shows order status only, which a release leaves unchanged
		keys = []string{cache.OrderDetailsKey(ev.OrderID)}
	}
	for _, k := range keys {
		i.cache.Evict(ctx, k)
	}
	i.log.Debug("cache invalidated", "event_type", e.Meta().EventType, "keys", keys)
	return nil
}
