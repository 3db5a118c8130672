package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/internal/payment/application"
	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/memory"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
)

func TestPaymentReads(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := domain.NewThresholdAuthorizer(decimal.NewFromInt(100), decimal.NewFromInt(2000), 0.8, nil)
	svc := application.NewService(log, memory.NewStore(), eventbus.New(), auth, idempotency.NewMemoryStore())
	h := NewHandler(log, svc).Routes()

	_, err := svc.ProcessPayment(context.Background(), application.ProcessPayment{
		OrderID: "o-1", CustomerID: "c-1", Amount: decimal.RequireFromString("42.10"),
		Currency: "USD", Method: "PIX", IdempotencyKey: "order-o-1",
	})
	require.NoError(t, err)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/payments/order/o-1")
	require.Equal(t, http.StatusOK, w.Code)
	var view PaymentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "COMPLETED", view.Status)
	assert.Equal(t, "PIX", view.PaymentMethod)
	assert.Equal(t, "42.1", view.Amount.String())

	w = get("/customers/c-1/payments")
	var list []PaymentView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = get("/payments/order/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
