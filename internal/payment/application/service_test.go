package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/internal/payment/application"
	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/memory"
	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
	"github.com/dmehra2102/order-fulfillment/pkg/money"
)

// fixed approves the middle band only when approve is set.
func fixed(approve bool) domain.Authorizer {
	draw := 0.99
	if approve {
		draw = 0
	}
	return domain.NewThresholdAuthorizer(decimal.NewFromInt(100), decimal.NewFromInt(2000), 0.8, func() float64 { return draw })
}

func setup(t *testing.T, auth domain.Authorizer) (*application.Service, *memory.Store, *eventbus.Bus) {
	t.Helper()
	store := memory.NewStore()
	bus := eventbus.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return application.NewService(log, store, bus, auth, idempotency.NewMemoryStore()), store, bus
}

func charge(orderID, amount string) application.ProcessPayment {
	return application.ProcessPayment{
		OrderID:        orderID,
		CustomerID:     "cust-1",
		Amount:         decimal.RequireFromString(amount),
		Currency:       "USD",
		Method:         "CREDIT_CARD",
		IdempotencyKey: "order-" + orderID,
		Items:          []events.LineItem{{ProductID: "p-1", ProductName: "Mug", Quantity: 1, UnitPrice: decimal.RequireFromString(amount)}},
	}
}

func TestSmallAmountCompletes(t *testing.T) {
	svc, store, bus := setup(t, fixed(false))
	res, err := svc.ProcessPayment(context.Background(), charge("o-1", "99.99"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	assert.Regexp(t, `^PAY-\d+-[0-9A-F]{8}$`, res.Reference)
	require.NotNil(t, res.ProcessedAt)

	saved, err := store.FindByOrderID(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, res.PaymentID, saved.ID)

	completed := bus.OfType(events.TypePaymentCompleted)
	require.Len(t, completed, 1)
	ev := completed[0].(events.PaymentCompleted)
	assert.Equal(t, "o-1", ev.OrderID)
	assert.Equal(t, res.Reference, ev.PaymentReference)
	assert.Equal(t, "CREDIT_CARD", ev.PaymentMethod)
	assert.Len(t, ev.Items, 1)
}

func TestLargeAmountFails(t *testing.T) {
	svc, _, bus := setup(t, fixed(true))
	res, err := svc.ProcessPayment(context.Background(), charge("o-2", "2000.01"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, domain.DeclineReason, res.FailureReason)

	failed := bus.OfType(events.TypePaymentFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, domain.DeclineReason, failed[0].(events.PaymentFailed).FailureReason)
	assert.Empty(t, bus.OfType(events.TypePaymentCompleted))
}

func TestMiddleBandFollowsDraw(t *testing.T) {
	svc, _, _ := setup(t, fixed(true))
	res, err := svc.ProcessPayment(context.Background(), charge("o-3", "500"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	svc, _, _ = setup(t, fixed(false))
	res, err = svc.ProcessPayment(context.Background(), charge("o-3", "500"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)
}

func TestReplayReturnsFirstResult(t *testing.T) {
	svc, _, bus := setup(t, fixed(true))
	ctx := context.Background()
	first, err := svc.ProcessPayment(ctx, charge("o-4", "10"))
	require.NoError(t, err)
	second, err := svc.ProcessPayment(ctx, charge("o-4", "10"))
	require.NoError(t, err)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.Reference, second.Reference)
	assert.Len(t, bus.OfType(events.TypePaymentCompleted), 1)
}

func TestConcurrentDuplicatesChargeOnce(t *testing.T) {
	svc, store, bus := setup(t, fixed(true))
	ctx := context.Background()

	var wg sync.WaitGroup
	refs := make([]string, 8)
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.ProcessPayment(ctx, charge("o-5", "10"))
			if err == nil {
				refs[i] = res.Reference
			}
		}(i)
	}
	wg.Wait()

	for _, r := range refs {
		assert.Equal(t, refs[0], r)
	}
	list, err := store.FindByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Len(t, bus.OfType(events.TypePaymentCompleted), 1)
}

func TestSecondKeyForSameOrderRejected(t *testing.T) {
	svc, _, _ := setup(t, fixed(true))
	ctx := context.Background()
	_, err := svc.ProcessPayment(ctx, charge("o-6", "10"))
	require.NoError(t, err)

	again := charge("o-6", "10")
	again.IdempotencyKey = "manual-retry"
	_, err = svc.ProcessPayment(ctx, again)
	assert.True(t, apperr.Is(err, apperr.CodePaymentExists))
}

func TestInvalidMethodCreatesNothing(t *testing.T) {
	svc, store, bus := setup(t, fixed(true))
	cmd := charge("o-7", "10")
	cmd.Method = "CASH"
	_, err := svc.ProcessPayment(context.Background(), cmd)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidPaymentMethod))

	_, err = store.FindByOrderID(context.Background(), "o-7")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, bus.Published(""))
}

func TestPublishFailureRepublishesOnRedelivery(t *testing.T) {
	svc, _, bus := setup(t, fixed(true))
	ctx := context.Background()
	bus.FailWith(errors.New("broker down"))
	_, err := svc.ProcessPayment(ctx, charge("o-8", "10"))
	require.Error(t, err)

	bus.FailWith(nil)
	res, err := svc.ProcessPayment(ctx, charge("o-8", "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
	completed := bus.OfType(events.TypePaymentCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, res.Reference, completed[0].(events.PaymentCompleted).PaymentReference)
}

func TestAuthorizerErrorIsRetryable(t *testing.T) {
	calls := 0
	auth := domain.AuthorizerFunc(func(context.Context, money.Money, domain.Method) (domain.Decision, error) {
		calls++
		if calls == 1 {
			return domain.Decision{}, errors.New("gateway timeout")
		}
		return domain.Decision{Approved: true}, nil
	})
	svc, _, _ := setup(t, auth)
	ctx := context.Background()
	_, err := svc.ProcessPayment(ctx, charge("o-9", "10"))
	require.Error(t, err)
	res, err := svc.ProcessPayment(ctx, charge("o-9", "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)
}

func TestHandleOrderCreated(t *testing.T) {
	svc, _, bus := setup(t, fixed(true))
	ctx := context.Background()
	ev := events.OrderCreated{
		Envelope:    events.NewEnvelope(events.TypeOrderCreated, "o-10", time.Now()),
		OrderNumber: "ORD-1-ABCDEF12",
		CustomerID:  "cust-2",
		TotalAmount: decimal.RequireFromString("25.00"),
		Currency:    "EUR",
		Items:       []events.LineItem{{ProductID: "p-1", ProductName: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")}},
	}
	require.NoError(t, svc.HandleEvent(ctx, ev))
	require.NoError(t, svc.HandleEvent(ctx, ev))

	p, err := svc.GetPaymentByOrder(ctx, "o-10")
	require.NoError(t, err)
	assert.Equal(t, domain.MethodCreditCard, p.Method)
	assert.Equal(t, "order-o-10", p.IdempotencyKey)
	assert.Equal(t, "25.00 EUR", p.Amount.String())
	assert.Len(t, bus.OfType(events.TypePaymentCompleted), 1)

	err = svc.HandleEvent(ctx, events.PaymentFailed{Envelope: events.NewEnvelope(events.TypePaymentFailed, "x", time.Now()), OrderID: "o-10"})
	assert.ErrorIs(t, err, messaging.ErrIgnored)

	_, err = svc.GetPaymentByOrder(ctx, "nope")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
