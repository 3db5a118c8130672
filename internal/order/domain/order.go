package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/money"
)

var ErrNotFound = errors.New("order not found")

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusConfirmed  OrderStatus = "CONFIRMED"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:    {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:  {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusDelivered: true, StatusCancelled: true},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   money.Money
	Reserved    bool
}

func (i OrderItem) Subtotal() (money.Money, error) {
	return i.UnitPrice.Mul(i.Quantity)
}

type Order struct {
	ID          string
	OrderNumber string
	CustomerID  string
	Items       []OrderItem
	Total       money.Money
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewOrder(customerID, currency string, now time.Time) (*Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, apperr.New(apperr.CodeValidation, "customer id is required")
	}
	total, err := money.Zero(currency)
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, "%v", err)
	}
	now = now.UTC()
	return &Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Total:      total,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// AddItem is only allowed before an order number is assigned. Repeated products are merged.
func (o *Order) AddItem(item OrderItem) error {
	if o.OrderNumber != "" {
		return apperr.New(apperr.CodeValidation, "order %s is already placed", o.OrderNumber)
	}
	if strings.TrimSpace(item.ProductID) == "" {
		return apperr.New(apperr.CodeValidation, "product id is required")
	}
	if item.Quantity <= 0 {
		return apperr.New(apperr.CodeValidation, "quantity for %s must be positive", item.ProductID)
	}
	if item.UnitPrice.Currency() != o.Total.Currency() {
		return apperr.New(apperr.CodeValidation, "item %s priced in %s, order is in %s",
			item.ProductID, item.UnitPrice.Currency(), o.Total.Currency())
	}

	merged := false
	for i := range o.Items {
		if o.Items[i].ProductID == item.ProductID {
			o.Items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		o.Items = append(o.Items, item)
	}
	return o.recalculate()
}

func (o *Order) recalculate() error {
	total, err := money.Zero(o.Total.Currency())
	if err != nil {
		return err
	}
	for _, it := range o.Items {
		sub, err := it.Subtotal()
		if err != nil {
			return err
		}
		if total, err = total.Add(sub); err != nil {
			return fmt.Errorf("order total: %w", err)
		}
	}
	o.Total = total
	return nil
}

func (o *Order) AssignNumber(n string) { o.OrderNumber = n }

// NewOrderNumber returns ORD-<unix millis>-<8 upper-case hex chars>.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}

func (o *Order) Confirm(now time.Time) error         { return o.transition(StatusConfirmed, now) }
func (o *Order) StartProcessing(now time.Time) error { return o.transition(StatusProcessing, now) }
func (o *Order) Deliver(now time.Time) error         { return o.transition(StatusDelivered, now) }
func (o *Order) Cancel(now time.Time) error          { return o.transition(StatusCancelled, now) }

func (o *Order) transition(to OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return apperr.New(apperr.CodeInvalidTransition, "order %s cannot move from %s to %s", o.ID, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return nil
}

// MarkReserved flags the line for productID and reports whether every line is now reserved.
func (o *Order) MarkReserved(productID string) (changed, all bool) {
	all = len(o.Items) > 0
	for i := range o.Items {
		if o.Items[i].ProductID == productID && !o.Items[i].Reserved {
			o.Items[i].Reserved = true
			changed = true
		}
		all = all && o.Items[i].Reserved
	}
	return changed, all
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}
