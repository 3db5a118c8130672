package domain

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/pkg/money"
)

const DeclineReason = "Payment processing failed - insufficient funds"

type Decision struct {
	Approved bool
	Reason   string
}

// Authorizer decides whether a charge goes through.
type Authorizer interface {
	Authorize(ctx context.Context, amount money.Money, method Method) (Decision, error)
}

// ThresholdAuthorizer approves amounts up to Low, declines amounts above High and
// approves the band in between with probability Rate.
type ThresholdAuthorizer struct {
	Low  decimal.Decimal
	High decimal.Decimal
	Rate float64

	mu   sync.Mutex
	draw func() float64
}

func NewThresholdAuthorizer(low, high decimal.Decimal, rate float64, draw func() float64) *ThresholdAuthorizer {
	if draw == nil {
		draw = rand.Float64
	}
	return &ThresholdAuthorizer{Low: low, High: high, Rate: rate, draw: draw}
}

func (a *ThresholdAuthorizer) Authorize(_ context.Context, amount money.Money, _ Method) (Decision, error) {
	d := amount.Amount()
	switch {
	case d.LessThanOrEqual(a.Low):
		return Decision{Approved: true}, nil
	case d.GreaterThan(a.High):
		return Decision{Reason: DeclineReason}, nil
	}
	a.mu.Lock()
	p := a.draw()
	a.mu.Unlock()
	if p < a.Rate {
		return Decision{Approved: true}, nil
	}
	return Decision{Reason: DeclineReason}, nil
}

// AuthorizerFunc adapts a plain function.
type AuthorizerFunc func(ctx context.Context, amount money.Money, method Method) (Decision, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, amount money.Money, method Method) (Decision, error) {
	return f(ctx, amount, method)
}
