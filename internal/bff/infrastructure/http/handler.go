package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-fulfillment/internal/bff/application"
	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
)

// DegradedHeader is set on responses assembled from fallbacks.
const DegradedHeader = "X-Degraded"

type Handler struct {
	log     *slog.Logger
	service *application.Service
	budget  time.Duration
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, budget time.Duration) *Handler {
	return &Handler{log: log, service: service, budget: budget, tracer: otel.Tracer("bff-http")}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/customers/{id}/orders", h.customerOrders)
	r.Get("/orders/{id}/details", h.orderDetails)
	r.Post("/orders", h.createOrder)
	return r
}

func (h *Handler) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.budget <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.budget)
}

func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CustomerOrders")
	defer span.End()
	ctx, cancel := h.withBudget(ctx)
	defer cancel()

	views, degraded := h.service.CustomerOrders(ctx, chi.URLParam(r, "id"))
	if degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) orderDetails(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderDetails")
	defer span.End()
	ctx, cancel := h.withBudget(ctx)
	defer cancel()

	id := chi.URLParam(r, "id")
	view := h.service.OrderDetails(ctx, id)
	if view == nil {
		httpx.WriteError(w, apperr.New(apperr.CodeNotFound, "order %s not found", id))
		return
	}
	if view.Degraded {
		w.Header().Set(DegradedHeader, "true")
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req application.CreateOrder
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	o, err := h.service.CreateOrder(ctx, req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, o)
}
