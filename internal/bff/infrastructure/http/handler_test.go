package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-fulfillment/internal/bff/application"
	"github.com/dmehra2102/order-fulfillment/internal/bff/cache"
	"github.com/dmehra2102/order-fulfillment/internal/bff/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/resilience"
)

type stubUpstream struct {
	paymentsDown bool
}

func (stubUpstream) ListCustomerOrders(context.Context, string) ([]application.OrderDTO, error) {
	return []application.OrderDTO{{OrderID: "o-1", OrderNumber: "ORD-1", CustomerID: "c-1", TotalAmount: decimal.NewFromInt(10), Currency: "USD", Status: "CONFIRMED"}}, nil
}

func (stubUpstream) GetOrder(_ context.Context, id string) (*application.OrderDTO, error) {
	if id != "o-1" {
		return nil, nil
	}
	return &application.OrderDTO{OrderID: "o-1", CustomerID: "c-1", TotalAmount: decimal.NewFromInt(10), Currency: "USD", Status: "CONFIRMED"}, nil
}

func (stubUpstream) CreateOrder(_ context.Context, cmd application.CreateOrder) (*application.OrderDTO, error) {
	return &application.OrderDTO{OrderID: "o-2", CustomerID: cmd.CustomerID, Status: "PENDING"}, nil
}

func (s stubUpstream) GetPaymentByOrder(_ context.Context, id string) (*application.PaymentDTO, error) {
	if s.paymentsDown {
		return nil, errors.New("dial tcp: connection refused")
	}
	return &application.PaymentDTO{PaymentID: "pay-1", OrderID: id, Status: domain.PaymentCompleted}, nil
}

func (stubUpstream) GetReservationsByOrder(_ context.Context, id string) ([]application.ReservationDTO, error) {
	return []application.ReservationDTO{{ProductID: "p-1", QuantityReserved: 1, Status: "CONFIRMED"}}, nil
}

func newRoutes(t *testing.T, up stubUpstream) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := func(name string) *resilience.Executor {
		p := resilience.DefaultPolicy(name)
		p.MaxAttempts = 1
		return resilience.New(log, p)
	}
	l1 := cache.NewLocal(10, time.Minute)
	t.Cleanup(l1.Close)
	svc := application.NewService(log, application.Dependencies{
		Orders: up, Payments: up, Inventory: up,
		OrderPolicy:     policy("order-service"),
		PaymentPolicy:   policy("payment-service"),
		InventoryPolicy: policy("inventory-service"),
	}, l1, time.Minute)
	return NewHandler(log, svc, time.Second).Routes()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	h.ServeHTTP(w, httptest.NewRequest(method, path, r))
	return w
}

func TestOrderDetailsEndpoint(t *testing.T) {
	h := newRoutes(t, stubUpstream{})

	w := do(h, http.MethodGet, "/orders/o-1/details", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(DegradedHeader))
	var v domain.CustomerOrderView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, domain.OverallConfirmed, v.OverallStatus)

	w = do(h, http.MethodGet, "/orders/o-9/details", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDegradedResponsesAreFlagged(t *testing.T) {
	h := newRoutes(t, stubUpstream{paymentsDown: true})

	w := do(h, http.MethodGet, "/orders/o-1/details", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(DegradedHeader))
	assert.Contains(t, w.Body.String(), `"overallStatus":"PENDING"`)
}

func TestCustomerOrdersAndCreate(t *testing.T) {
	h := newRoutes(t, stubUpstream{})

	w := do(h, http.MethodGet, "/customers/c-1/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []domain.OrderSummaryView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(h, http.MethodPost, "/orders", `{"customerId":"c-1","currency":"USD","items":[]}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(h, http.MethodPost, "/orders", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
