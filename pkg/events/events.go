// Package events defines the fulfillment event envelope and its concrete payloads.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeOrderCreated       Type = "OrderCreated"
	TypeOrderStatusChanged Type = "OrderStatusChanged"
	TypePaymentCompleted   Type = "PaymentCompleted"
	TypePaymentFailed      Type = "PaymentFailed"
	TypeInventoryReserved  Type = "InventoryReserved"
	TypeInventoryReleased  Type = "InventoryReleased"
)

const SchemaVersion = 1

const (
	TopicOrders    = "order.events"
	TopicPayments  = "payment.events"
	TopicInventory = "inventory.events"
)

// TopicFor returns the stream an event type is published on.
func TopicFor(t Type) string {
	switch t {
	case TypeOrderCreated, TypeOrderStatusChanged:
		return TopicOrders
	case TypePaymentCompleted, TypePaymentFailed:
		return TopicPayments
	default:
		return TopicInventory
	}
}

type Envelope struct {
	EventID     string    `json:"eventId"`
	EventType   Type      `json:"eventType"`
	AggregateID string    `json:"aggregateId"`
	OccurredOn  time.Time `json:"occurredOn"`
	Version     int       `json:"version"`
}

func NewEnvelope(t Type, aggregateID string, now time.Time) Envelope {
	return Envelope{
		EventID:     uuid.NewString(),
		EventType:   t,
		AggregateID: aggregateID,
		OccurredOn:  now.UTC(),
		Version:     SchemaVersion,
	}
}

func (e Envelope) Meta() Envelope { return e }

// Event is implemented only by the payload types in this package.
type Event interface {
	Meta() Envelope
	// CorrelationID is the order the event belongs to.
	CorrelationID() string
	sealed()
}

type LineItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type OrderCreated struct {
	Envelope
	OrderNumber string          `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Items       []LineItem      `json:"items,omitempty"`
}

func (e OrderCreated) CorrelationID() string { return e.AggregateID }
func (OrderCreated) sealed()                 {}

// OrderStatusChanged is announced for every transition after placement.
type OrderStatusChanged struct {
	Envelope
	CustomerID string `json:"customerId"`
	From       string `json:"fromStatus"`
	To         string `json:"toStatus"`
}

func (e OrderStatusChanged) CorrelationID() string { return e.AggregateID }
func (OrderStatusChanged) sealed()                 {}

type PaymentCompleted struct {
	Envelope
	OrderID          string          `json:"orderId"`
	CustomerID       string          `json:"customerId"`
	PaymentReference string          `json:"paymentReference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"paymentMethod"`
	Items            []LineItem      `json:"items,omitempty"`
}

func (e PaymentCompleted) CorrelationID() string { return e.OrderID }
func (PaymentCompleted) sealed()                 {}

type PaymentFailed struct {
	Envelope
	OrderID          string          `json:"orderId"`
	CustomerID       string          `json:"customerId"`
	PaymentReference string          `json:"paymentReference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	FailureReason    string          `json:"failureReason"`
}

func (e PaymentFailed) CorrelationID() string { return e.OrderID }
func (PaymentFailed) sealed()                 {}

type InventoryReserved struct {
	Envelope
	OrderID              string `json:"orderId"`
	CustomerID           string `json:"customerId,omitempty"`
	ProductID            string `json:"productId"`
	ProductName          string `json:"productName"`
	QuantityReserved     int    `json:"quantityReserved"`
	ReservationReference string `json:"reservationReference"`
}

func (e InventoryReserved) CorrelationID() string { return e.OrderID }
func (InventoryReserved) sealed()                 {}

type InventoryReleased struct {
	Envelope
	OrderID          string `json:"orderId"`
	ProductID        string `json:"productId"`
	ProductName      string `json:"productName"`
	QuantityReleased int    `json:"quantityReleased"`
	Reason           string `json:"reason"`
}

func (e InventoryReleased) CorrelationID() string { return e.OrderID }
func (InventoryReleased) sealed()                 {}
