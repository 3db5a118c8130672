// Package domain holds the customer-facing read models the BFF assembles.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OverallPaymentFailed     = "PAYMENT_FAILED"
	OverallConfirmed         = "CONFIRMED"
	OverallProcessingPayment = "PROCESSING_PAYMENT"
	OverallPending           = "PENDING"

	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
	PaymentPending   = "PENDING"

	InventoryReserved = "RESERVED"
	InventoryReleased = "RELEASED"
	InventoryExpired  = "EXPIRED"

	// StatusUnknown marks a placeholder standing in for an unreachable dependency.
	StatusUnknown = "UNKNOWN"
)

type OrderSummaryView struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	OrderDate   time.Time       `json:"orderDate"`
}

type PaymentInfoView struct {
	PaymentID        string          `json:"paymentId,omitempty"`
	PaymentReference string          `json:"paymentReference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	PaymentMethod    string          `json:"paymentMethod"`
	ProcessedAt      *time.Time      `json:"processedAt,omitempty"`
}

type InventoryInfoView struct {
	ProductID            string `json:"productId"`
	ProductName          string `json:"productName"`
	QuantityReserved     int    `json:"quantityReserved"`
	ReservationReference string `json:"reservationReference"`
	Status               string `json:"status"`
}

type CustomerOrderView struct {
	OrderID       string              `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	CustomerID    string              `json:"customerId"`
	TotalAmount   decimal.Decimal     `json:"totalAmount"`
	Currency      string              `json:"currency"`
	OrderStatus   string              `json:"orderStatus"`
	OrderDate     time.Time           `json:"orderDate"`
	Payment       *PaymentInfoView    `json:"payment"`
	Inventory     []InventoryInfoView `json:"inventory"`
	OverallStatus string              `json:"overallStatus"`
	// Degraded is set when any part of the view came from a fallback.
	Degraded bool `json:"degraded,omitempty"`
}

// OverallStatus applies the precedence absent/failed payment, then fully reserved,
// then pending payment. An empty reservation list is not fully reserved.
func OverallStatus(payment *PaymentInfoView, inventory []InventoryInfoView) string {
	if payment == nil || payment.Status == PaymentFailed {
		return OverallPaymentFailed
	}
	if payment.Status == PaymentCompleted && allReserved(inventory) {
		return OverallConfirmed
	}
	if payment.Status == PaymentPending {
		return OverallProcessingPayment
	}
	return OverallPending
}

func allReserved(lines []InventoryInfoView) bool {
	if len(lines) == 0 {
		return false
	}
	for _, l := range lines {
		if l.Status != InventoryReserved {
			return false
		}
	}
	return true
}

// InventoryStatus maps a reservation state to the status shown to customers.
func InventoryStatus(reservation string) string {
	switch reservation {
	case "PENDING", "CONFIRMED":
		return InventoryReserved
	case "CANCELLED":
		return InventoryReleased
	case "EXPIRED":
		return InventoryExpired
	default:
		return StatusUnknown
	}
}

func PlaceholderPayment() *PaymentInfoView {
	return &PaymentInfoView{PaymentReference: StatusUnknown, Amount: decimal.Zero, Status: StatusUnknown, PaymentMethod: StatusUnknown}
}

func PlaceholderInventory() []InventoryInfoView {
	return []InventoryInfoView{{ProductName: "Product (Status Unknown)", ReservationReference: StatusUnknown, Status: StatusUnknown}}
}
