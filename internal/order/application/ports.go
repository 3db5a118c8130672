package application

import (
	"context"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
)

// OrderStore returns domain.ErrNotFound for unknown ids.
type OrderStore interface {
	Save(ctx context.Context, o *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error)
	ExistsByOrderNumber(ctx context.Context, number string) (bool, error)
}

// OutboxStore is implemented by stores that persist an order and its events in one
// transaction. The service then leaves publishing to the outbox relay.
type OutboxStore interface {
	SaveWithEvents(ctx context.Context, o *domain.Order, evs ...events.Event) error
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}
