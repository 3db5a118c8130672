package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-fulfillment/internal/order/application"
	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type itemReq struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type createOrderReq struct {
	CustomerID string    `json:"customerId"`
	Currency   string    `json:"currency"`
	Items      []itemReq `json:"items"`
}

type ItemView struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Reserved    bool            `json:"reserved"`
}

type OrderView struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	Items       []ItemView      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	OrderDate   time.Time       `json:"orderDate"`
}

func toView(o *domain.Order) OrderView {
	items := make([]ItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemView{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.Amount(),
			Reserved:    it.Reserved,
		})
	}
	return OrderView{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		Items:       items,
		TotalAmount: o.Total.Amount(),
		Currency:    o.Total.Currency(),
		Status:      string(o.Status),
		OrderDate:   o.CreatedAt,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/customers/{id}/orders", h.customerOrders)
	r.Post("/orders/{id}/confirm", h.transition(h.service.Confirm))
	r.Post("/orders/{id}/process", h.transition(h.service.StartProcessing))
	r.Post("/orders/{id}/deliver", h.transition(h.service.Deliver))
	r.Post("/orders/{id}/cancel", h.transition(h.service.Cancel))
	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	cmd := application.PlaceOrder{CustomerID: req.CustomerID, Currency: req.Currency}
	for _, it := range req.Items {
		cmd.Items = append(cmd.Items, application.ItemInput(it))
	}

	o, err := h.service.PlaceOrder(ctx, cmd)
	if err != nil {
		h.log.Error("place order failed", "customer_id", req.CustomerID, "err", err)
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toView(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toView(o))
}

func (h *Handler) customerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListCustomerOrders(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, toView(o))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) transition(step func(ctx context.Context, id string) (*domain.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := step(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			httpx.WriteError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, toView(o))
	}
}
