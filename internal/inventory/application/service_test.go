package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/application"
	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/memory"
	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
)

func setup(t *testing.T) (*application.Service, *memory.Store, *eventbus.Bus) {
	t.Helper()
	store := memory.NewStore()
	bus := eventbus.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := application.NewService(log, store, bus, idempotency.NewMemoryStore(), time.Hour)
	ctx := context.Background()
	_, err := svc.Restock(ctx, "p-1", "Mug", 5)
	require.NoError(t, err)
	_, err = svc.Restock(ctx, "p-2", "Tea", 1)
	require.NoError(t, err)
	return svc, store, bus
}

func reserve(orderID string, items ...application.ItemInput) application.ReserveInventory {
	return application.ReserveInventory{OrderID: orderID, CustomerID: "cust-1", Items: items, IdempotencyKey: "payment-" + orderID}
}

var (
	mugs = application.ItemInput{ProductID: "p-1", ProductName: "Mug", Quantity: 2}
	tea  = application.ItemInput{ProductID: "p-2", ProductName: "Tea", Quantity: 1}
)

func available(t *testing.T, store *memory.Store, productID string) (int, int) {
	t.Helper()
	rec, err := store.FindByProductID(context.Background(), productID)
	require.NoError(t, err)
	return rec.Available, rec.Reserved
}

func TestReserveAllItems(t *testing.T) {
	svc, store, bus := setup(t)
	res, err := svc.ReserveInventory(context.Background(), reserve("o-1", mugs, tea))
	require.NoError(t, err)

	assert.Equal(t, application.ResultReserved, res.Status)
	assert.Regexp(t, `^RES-\d+-[0-9A-F]{8}$`, res.Reference)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 3, res.Items[0].AvailableQuantity)

	a, r := available(t, store, "p-1")
	assert.Equal(t, 3, a)
	assert.Equal(t, 2, r)

	reserved := bus.OfType(events.TypeInventoryReserved)
	require.Len(t, reserved, 2)
	ev := reserved[0].(events.InventoryReserved)
	assert.Equal(t, "o-1", ev.OrderID)
	assert.Equal(t, "cust-1", ev.CustomerID)
	assert.Equal(t, res.Reference, ev.ReservationReference)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	svc, store, bus := setup(t)
	big := tea
	big.Quantity = 2
	_, err := svc.ReserveInventory(context.Background(), reserve("o-2", mugs, big))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientStock))
	assert.Contains(t, err.Error(), "Tea")

	a, r := available(t, store, "p-1")
	assert.Equal(t, 5, a)
	assert.Equal(t, 0, r)
	assert.Empty(t, bus.OfType(events.TypeInventoryReserved))
}

func TestUnknownProductCreatedEmpty(t *testing.T) {
	svc, store, _ := setup(t)
	_, err := svc.ReserveInventory(context.Background(), reserve("o-3",
		application.ItemInput{ProductID: "p-new", ProductName: "Kettle", Quantity: 1}))
	assert.True(t, apperr.Is(err, apperr.CodeInsufficientStock))

	rec, err := store.FindByProductID(context.Background(), "p-new")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfStock, rec.Status())
}

func TestReplayDoesNotReserveTwice(t *testing.T) {
	svc, store, bus := setup(t)
	ctx := context.Background()
	first, err := svc.ReserveInventory(ctx, reserve("o-4", mugs))
	require.NoError(t, err)
	again, err := svc.ReserveInventory(ctx, reserve("o-4", mugs))
	require.NoError(t, err)
	assert.Equal(t, first.Reference, again.Reference)

	other := reserve("o-4", mugs)
	other.IdempotencyKey = "manual"
	res, err := svc.ReserveInventory(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, application.ResultAlreadyReserved, res.Status)
	assert.Equal(t, first.Reference, res.Reference)

	a, _ := available(t, store, "p-1")
	assert.Equal(t, 3, a)
	// the untracked key republishes the pending line
	assert.Len(t, bus.OfType(events.TypeInventoryReserved), 2)
}

func TestSaveFailureCompensates(t *testing.T) {
	svc, store, bus := setup(t)
	store.FailSaveOf("p-2", errors.New("disk full"))
	_, err := svc.ReserveInventory(context.Background(), reserve("o-5", mugs, tea))
	require.ErrorContains(t, err, "disk full")

	a, r := available(t, store, "p-1")
	assert.Equal(t, 5, a)
	assert.Equal(t, 0, r)
	assert.Empty(t, bus.OfType(events.TypeInventoryReserved))

	store.FailSaveOf("p-2", nil)
	res, err := svc.ReserveInventory(context.Background(), reserve("o-5", mugs, tea))
	require.NoError(t, err)
	assert.Equal(t, application.ResultReserved, res.Status)
}

func TestReleaseAndConfirm(t *testing.T) {
	svc, store, bus := setup(t)
	ctx := context.Background()
	_, err := svc.ReserveInventory(ctx, reserve("o-6", mugs))
	require.NoError(t, err)

	released, err := svc.ReleaseReservation(ctx, "o-6", application.ReasonPaymentFailed)
	require.NoError(t, err)
	require.Len(t, released, 1)
	a, _ := available(t, store, "p-1")
	assert.Equal(t, 5, a)

	released, err = svc.ReleaseReservation(ctx, "o-6", application.ReasonPaymentFailed)
	require.NoError(t, err)
	assert.Empty(t, released)
	require.Len(t, bus.OfType(events.TypeInventoryReleased), 1)
	assert.Equal(t, application.ReasonPaymentFailed, bus.OfType(events.TypeInventoryReleased)[0].(events.InventoryReleased).Reason)

	_, err = svc.ReserveInventory(ctx, reserve("o-7", mugs))
	require.NoError(t, err)
	views, err := svc.ConfirmReservation(ctx, "o-7")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, views[0].Status)

	_, err = svc.ReleaseReservation(ctx, "o-7", application.ReasonReleased)
	assert.True(t, apperr.Is(err, apperr.CodeReservationConfirmed))

	_, err = svc.ConfirmReservation(ctx, "o-none")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestConfirmIsAllOrNothing(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	_, err := svc.ReserveInventory(ctx, reserve("o-8", mugs, tea))
	require.NoError(t, err)

	store.FailSaveOf("p-2", errors.New("disk full"))
	_, err = svc.ConfirmReservation(ctx, "o-8")
	require.ErrorContains(t, err, "disk full")

	_, r := available(t, store, "p-1")
	assert.Equal(t, 2, r)
	views, err := svc.GetReservationsByOrder(ctx, "o-8")
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.Equal(t, domain.ReservationPending, v.Status, v.ProductID)
	}

	store.FailSaveOf("p-2", nil)
	views, err = svc.ConfirmReservation(ctx, "o-8")
	require.NoError(t, err)
	require.Len(t, views, 2)
	_, r = available(t, store, "p-1")
	assert.Equal(t, 0, r)

	_, err = svc.ConfirmReservation(ctx, "o-8")
	assert.True(t, apperr.Is(err, apperr.CodeInvalidTransition))
}

func TestExpireReservations(t *testing.T) {
	svc, store, bus := setup(t)
	ctx := context.Background()
	_, err := svc.ReserveInventory(ctx, reserve("o-8", mugs))
	require.NoError(t, err)

	n, err := svc.ExpireReservations(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.ExpireReservations(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a, r := available(t, store, "p-1")
	assert.Equal(t, 5, a)
	assert.Equal(t, 0, r)

	rel := bus.OfType(events.TypeInventoryReleased)
	require.Len(t, rel, 1)
	assert.Equal(t, application.ReasonExpired, rel[0].(events.InventoryReleased).Reason)

	views, err := svc.GetReservationsByOrder(ctx, "o-8")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationExpired, views[0].Status)
}

func TestHandleEvents(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()
	paid := events.PaymentCompleted{
		Envelope: events.NewEnvelope(events.TypePaymentCompleted, "pay-1", time.Now()),
		OrderID:  "o-9",
		Items:    []events.LineItem{{ProductID: "p-1", ProductName: "Mug", Quantity: 4, UnitPrice: decimal.NewFromInt(3)}},
	}
	require.NoError(t, svc.HandleEvent(ctx, paid))
	require.NoError(t, svc.HandleEvent(ctx, paid))
	a, _ := available(t, store, "p-1")
	assert.Equal(t, 1, a)

	failed := events.PaymentFailed{Envelope: events.NewEnvelope(events.TypePaymentFailed, "pay-2", time.Now()), OrderID: "o-10"}
	require.NoError(t, svc.HandleEvent(ctx, failed))

	err := svc.HandleEvent(ctx, events.OrderCreated{Envelope: events.NewEnvelope(events.TypeOrderCreated, "o-11", time.Now())})
	assert.ErrorIs(t, err, messaging.ErrIgnored)
}
