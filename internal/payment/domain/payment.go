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

var (
	ErrNotFound = errors.New("payment not found")
	// ErrConflict is returned by stores when the order id or idempotency key is taken.
	ErrConflict = errors.New("payment already stored")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

type Method string

const (
	MethodCreditCard    Method = "CREDIT_CARD"
	MethodDebitCard     Method = "DEBIT_CARD"
	MethodPix           Method = "PIX"
	MethodBankTransfer  Method = "BANK_TRANSFER"
	MethodDigitalWallet Method = "DIGITAL_WALLET"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(strings.TrimSpace(s))); m {
	case MethodCreditCard, MethodDebitCard, MethodPix, MethodBankTransfer, MethodDigitalWallet:
		return m, nil
	}
	return "", apperr.New(apperr.CodeInvalidPaymentMethod, "unsupported payment method %q", s)
}

type Payment struct {
	ID             string
	OrderID        string
	CustomerID     string
	Reference      string
	Amount         money.Money
	Method         Method
	Status         Status
	IdempotencyKey string
	FailureReason  string
	ProcessedAt    *time.Time
	CreatedAt      time.Time
}

func NewPayment(orderID, customerID string, amount money.Money, method Method, idempotencyKey string, now time.Time) *Payment {
	return &Payment{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		CustomerID:     customerID,
		Reference:      NewReference(now),
		Amount:         amount,
		Method:         method,
		Status:         StatusPending,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now.UTC(),
	}
}

// NewReference returns PAY-<unix millis>-<8 upper-case hex chars>.
func NewReference(now time.Time) string {
	return fmt.Sprintf("PAY-%d-%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}

func (p *Payment) Complete(now time.Time) error {
	if p.Status != StatusPending {
		return apperr.New(apperr.CodeInvalidTransition, "payment %s is %s, only pending payments can complete", p.Reference, p.Status)
	}
	t := now.UTC()
	p.Status = StatusCompleted
	p.ProcessedAt = &t
	return nil
}

func (p *Payment) Fail(reason string, now time.Time) error {
	if p.Status != StatusPending {
		return apperr.New(apperr.CodeInvalidTransition, "payment %s is %s, only pending payments can fail", p.Reference, p.Status)
	}
	t := now.UTC()
	p.Status = StatusFailed
	p.FailureReason = reason
	p.ProcessedAt = &t
	return nil
}

func (p *Payment) Clone() *Payment {
	c := *p
	if p.ProcessedAt != nil {
		t := *p.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}
