package application

import (
	"context"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// PaymentStore returns domain.ErrNotFound for misses and domain.ErrConflict when a
// different payment already holds the order id or idempotency key.
type PaymentStore interface {
	Save(ctx context.Context, p *domain.Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error)
	ExistsByOrderID(ctx context.Context, orderID string) (bool, error)
	FindByCustomer(ctx context.Context, customerID string) ([]*domain.Payment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}
