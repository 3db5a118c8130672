package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/application"
	"github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/memory"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestInventoryRoutes(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := application.NewService(log, memory.NewStore(), eventbus.New(), idempotency.NewMemoryStore(), 0)
	h := NewHandler(log, svc).Routes()

	w := do(t, h, http.MethodPut, "/inventory/p-1", `{"productName":"Mug","quantity":5}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view InventoryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, 5, view.Available)
	assert.Equal(t, "AVAILABLE", view.Status)

	_, err := svc.ReserveInventory(context.Background(), application.ReserveInventory{
		OrderID: "o-1", IdempotencyKey: "payment-o-1",
		Items: []application.ItemInput{{ProductID: "p-1", ProductName: "Mug", Quantity: 2}},
	})
	require.NoError(t, err)

	w = do(t, h, http.MethodGet, "/reservations/order/o-1", "")
	var list []application.ReservationView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "PENDING", string(list[0].Status))

	w = do(t, h, http.MethodPost, "/reservations/order/o-1/confirm", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodDelete, "/reservations/order/o-1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "RESERVATION_CONFIRMED")

	w = do(t, h, http.MethodGet, "/inventory/p-1", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, 3, view.Available)
	assert.Equal(t, 0, view.Reserved)

	w = do(t, h, http.MethodGet, "/inventory/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodPut, "/inventory/p-1", `{"quantity":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/reservations/order/none", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}
