package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderDTO, PaymentDTO and ReservationDTO mirror the owning services' read endpoints.
type OrderDTO struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	OrderDate   time.Time       `json:"orderDate"`
}

type PaymentDTO struct {
	PaymentID        string          `json:"paymentId"`
	OrderID          string          `json:"orderId"`
	PaymentReference string          `json:"paymentReference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"paymentMethod"`
	Status           string          `json:"status"`
	ProcessedAt      *time.Time      `json:"processedAt,omitempty"`
}

type ReservationDTO struct {
	ProductID            string `json:"productId"`
	ProductName          string `json:"productName"`
	QuantityReserved     int    `json:"quantityReserved"`
	ReservationReference string `json:"reservationReference"`
	Status               string `json:"status"`
}

type CreateOrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type CreateOrder struct {
	CustomerID string            `json:"customerId"`
	Currency   string            `json:"currency"`
	Items      []CreateOrderItem `json:"items"`
}

// Single-item reads return nil without error when the resource does not exist.
type OrderAccessor interface {
	ListCustomerOrders(ctx context.Context, customerID string) ([]OrderDTO, error)
	GetOrder(ctx context.Context, orderID string) (*OrderDTO, error)
	CreateOrder(ctx context.Context, cmd CreateOrder) (*OrderDTO, error)
}

type PaymentAccessor interface {
	GetPaymentByOrder(ctx context.Context, orderID string) (*PaymentDTO, error)
}

type InventoryAccessor interface {
	GetReservationsByOrder(ctx context.Context, orderID string) ([]ReservationDTO, error)
}
