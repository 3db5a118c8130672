package application

import (
	"context"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// InventoryStore persists a record together with all of its reservations.
type InventoryStore interface {
	Save(ctx context.Context, r *domain.Record) error
	FindByProductID(ctx context.Context, productID string) (*domain.Record, error)
	FindAll(ctx context.Context) ([]*domain.Record, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}
