package events

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDispatchesOnType(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := PaymentCompleted{
		Envelope:         NewEnvelope(TypePaymentCompleted, "pay-1", now),
		OrderID:          "ord-1",
		CustomerID:       "cust-1",
		PaymentReference: "PAY-1",
		Amount:           decimal.RequireFromString("49.90"),
		Currency:         "USD",
		PaymentMethod:    "PIX",
	}
	b, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(b)
	require.NoError(t, err)
	pc, ok := out.(PaymentCompleted)
	require.True(t, ok)
	assert.Equal(t, "ord-1", pc.CorrelationID())
	assert.Equal(t, SchemaVersion, pc.Meta().Version)
	assert.True(t, pc.Amount.Equal(in.Amount))
	assert.True(t, now.Equal(pc.OccurredOn))
}

func TestDecodeFieldNames(t *testing.T) {
	raw := `{"eventId":"e1","eventType":"InventoryReleased","aggregateId":"p-1","occurredOn":"2026-01-01T00:00:00Z",
		"version":1,"orderId":"o-1","productId":"p-1","productName":"Mug","quantityReleased":2,"reason":"EXPIRED"}`
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	rel := ev.(InventoryReleased)
	assert.Equal(t, 2, rel.QuantityReleased)
	assert.Equal(t, "EXPIRED", rel.Reason)
	assert.Equal(t, "o-1", rel.CorrelationID())
}

func TestDecodeStatusChange(t *testing.T) {
	raw := `{"eventId":"e2","eventType":"OrderStatusChanged","aggregateId":"o-9","occurredOn":"2026-01-01T00:00:00Z",
		"version":1,"customerId":"c-9","fromStatus":"PENDING","toStatus":"CONFIRMED"}`
	ev, err := Decode([]byte(raw))
	require.NoError(t, err)
	sc := ev.(OrderStatusChanged)
	assert.Equal(t, "o-9", sc.CorrelationID())
	assert.Equal(t, "c-9", sc.CustomerID)
	assert.Equal(t, "CONFIRMED", sc.To)
}

func TestDecodeFailures(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"eventId":"e1"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"eventType":"ShipmentDispatched","aggregateId":"x"}`))
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"eventType":"PaymentFailed","aggregateId":"pay-1"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, TopicOrders, TopicFor(TypeOrderCreated))
	assert.Equal(t, TopicOrders, TopicFor(TypeOrderStatusChanged))
	assert.Equal(t, TopicPayments, TopicFor(TypePaymentFailed))
	assert.Equal(t, TopicInventory, TopicFor(TypeInventoryReserved))
}
