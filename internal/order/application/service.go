package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
	"github.com/dmehra2102/order-fulfillment/pkg/money"
)

const numberAttempts = 3

type Service struct {
	log   *slog.Logger
	store OrderStore
	pub   EventPublisher
	now   func() time.Time
}

func NewService(log *slog.Logger, store OrderStore, pub EventPublisher) *Service {
	return &Service{log: log, store: store, pub: pub, now: time.Now}
}

type ItemInput struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

type PlaceOrder struct {
	CustomerID string
	Currency   string
	Items      []ItemInput
}

// PlaceOrder validates, numbers and stores the order, then announces it.
func (s *Service) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*domain.Order, error) {
	if len(cmd.Items) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "order needs at least one item")
	}
	now := s.now()
	o, err := domain.NewOrder(cmd.CustomerID, cmd.Currency, now)
	if err != nil {
		return nil, err
	}
	for _, in := range cmd.Items {
		price, err := money.New(in.UnitPrice, cmd.Currency)
		if err != nil {
			return nil, apperr.New(apperr.CodeValidation, "item %s: %v", in.ProductID, err)
		}
		if err := o.AddItem(domain.OrderItem{
			ProductID:   in.ProductID,
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			UnitPrice:   price,
		}); err != nil {
			return nil, err
		}
	}

	number, err := s.uniqueNumber(ctx, now)
	if err != nil {
		return nil, err
	}
	o.AssignNumber(number)

	if err := s.save(ctx, o, orderCreated(o, now)); err != nil {
		return nil, err
	}
	s.log.Info("order placed", "order_id", o.ID, "order_number", o.OrderNumber, "total", o.Total.String())
	return o, nil
}

// save stores o with the events its change produced. An OutboxStore keeps both in one
// transaction; any other store is followed by a direct publish.
func (s *Service) save(ctx context.Context, o *domain.Order, evs ...events.Event) error {
	if ob, ok := s.store.(OutboxStore); ok {
		if err := ob.SaveWithEvents(ctx, o, evs...); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		return nil
	}
	if err := s.store.Save(ctx, o); err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	for _, e := range evs {
		if err := s.pub.Publish(ctx, e); err != nil {
			return fmt.Errorf("publish %s: %w", e.Meta().EventType, err)
		}
	}
	return nil
}

func (s *Service) uniqueNumber(ctx context.Context, now time.Time) (string, error) {
	for i := 0; i < numberAttempts; i++ {
		n := domain.NewOrderNumber(now)
		exists, err := s.store.ExistsByOrderNumber(ctx, n)
		if err != nil {
			return "", fmt.Errorf("check order number: %w", err)
		}
		if !exists {
			return n, nil
		}
	}
	return "", apperr.New(apperr.CodeOrderNumberExists, "could not allocate a unique order number")
}

func orderCreated(o *domain.Order, now time.Time) events.OrderCreated {
	items := make([]events.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.LineItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.Amount(),
		})
	}
	return events.OrderCreated{
		Envelope:    events.NewEnvelope(events.TypeOrderCreated, o.ID, now),
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		TotalAmount: o.Total.Amount(),
		Currency:    o.Total.Currency(),
		Items:       items,
	}
}

func statusChanged(o *domain.Order, from domain.OrderStatus, now time.Time) events.OrderStatusChanged {
	return events.OrderStatusChanged{
		Envelope:   events.NewEnvelope(events.TypeOrderStatusChanged, o.ID, now),
		CustomerID: o.CustomerID,
		From:       string(from),
		To:         string(o.Status),
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.store.FindByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "order %s not found", id)
	}
	return o, err
}

func (s *Service) ListCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	return s.store.FindByCustomer(ctx, customerID)
}

func (s *Service) Confirm(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, (*domain.Order).Confirm)
}

func (s *Service) StartProcessing(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, (*domain.Order).StartProcessing)
}

func (s *Service) Deliver(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, (*domain.Order).Deliver)
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Order, error) {
	return s.transition(ctx, id, (*domain.Order).Cancel)
}

func (s *Service) transition(ctx context.Context, id string, step func(*domain.Order, time.Time) error) (*domain.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	from, now := o.Status, s.now()
	if err := step(o, now); err != nil {
		return nil, err
	}
	if err := s.save(ctx, o, statusChanged(o, from, now)); err != nil {
		return nil, err
	}
	s.log.Info("order status changed", "order_id", o.ID, "from", from, "to", o.Status)
	return o, nil
}

// HandleEvent reacts to downstream outcomes: a failed payment cancels the order and a
// fully reserved order is confirmed. Both reactions tolerate redelivery.
func (s *Service) HandleEvent(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.PaymentFailed:
		return s.onPaymentFailed(ctx, ev)
	case events.InventoryReserved:
		return s.onInventoryReserved(ctx, ev)
	default:
		return messaging.ErrIgnored
	}
}

func (s *Service) onPaymentFailed(ctx context.Context, ev events.PaymentFailed) error {
	o, err := s.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if o.Status == domain.StatusCancelled {
		return nil
	}
	from, now := o.Status, s.now()
	if err := o.Cancel(now); err != nil {
		s.log.Warn("payment failed for order that cannot be cancelled", "order_id", o.ID, "status", o.Status)
		return nil
	}
	if err := s.save(ctx, o, statusChanged(o, from, now)); err != nil {
		return err
	}
	s.log.Info("order cancelled after payment failure", "order_id", o.ID, "reason", ev.FailureReason)
	return nil
}

func (s *Service) onInventoryReserved(ctx context.Context, ev events.InventoryReserved) error {
	o, err := s.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	changed, all := o.MarkReserved(ev.ProductID)
	if !changed {
		return nil
	}
	var evs []events.Event
	if all && o.Status == domain.StatusPending {
		now := s.now()
		if err := o.Confirm(now); err != nil {
			return err
		}
		evs = append(evs, statusChanged(o, domain.StatusPending, now))
		s.log.Info("order confirmed, all lines reserved", "order_id", o.ID)
	}
	return s.save(ctx, o, evs...)
}
