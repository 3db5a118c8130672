package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/payment/application"
	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service}
}

type PaymentView struct {
	PaymentID        string          `json:"paymentId"`
	OrderID          string          `json:"orderId"`
	CustomerID       string          `json:"customerId"`
	PaymentReference string          `json:"paymentReference"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    string          `json:"paymentMethod"`
	Status           string          `json:"status"`
	FailureReason    string          `json:"failureReason,omitempty"`
	ProcessedAt      *time.Time      `json:"processedAt,omitempty"`
}

func toView(p *domain.Payment) PaymentView {
	return PaymentView{
		PaymentID:        p.ID,
		OrderID:          p.OrderID,
		CustomerID:       p.CustomerID,
		PaymentReference: p.Reference,
		Amount:           p.Amount.Amount(),
		Currency:         p.Amount.Currency(),
		PaymentMethod:    string(p.Method),
		Status:           string(p.Status),
		FailureReason:    p.FailureReason,
		ProcessedAt:      p.ProcessedAt,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/payments/order/{orderId}", h.byOrder)
	r.Get("/customers/{id}/payments", h.byCustomer)
	return r
}

func (h *Handler) byOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPaymentByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toView(p))
}

func (h *Handler) byCustomer(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListCustomerPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.log.Error("list payments failed", "customer_id", chi.URLParam(r, "id"), "err", err)
		httpx.WriteError(w, err)
		return
	}
	out := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		out = append(out, toView(p))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
