package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/application"
	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{log: log, service: service}
}

type InventoryView struct {
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	Available   int       `json:"availableQuantity"`
	Reserved    int       `json:"reservedQuantity"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toView(r *domain.Record) InventoryView {
	return InventoryView{
		ProductID:   r.ProductID,
		ProductName: r.ProductName,
		Available:   r.Available,
		Reserved:    r.Reserved,
		Status:      string(r.Status()),
		UpdatedAt:   r.UpdatedAt,
	}
}

type restockReq struct {
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
}

type releaseReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/reservations/order/{orderId}", h.reservations)
	r.Post("/reservations/order/{orderId}/confirm", h.confirm)
	r.Delete("/reservations/order/{orderId}", h.release)
	r.Get("/inventory/{productId}", h.inventory)
	r.Put("/inventory/{productId}", h.restock)
	return r
}

func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetReservationsByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ConfirmReservation(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	req := releaseReq{Reason: application.ReasonReleased}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, err)
			return
		}
	}
	out, err := h.service.ReleaseReservation(r.Context(), chi.URLParam(r, "orderId"), req.Reason)
	if err != nil {
		h.log.Error("release failed", "order_id", chi.URLParam(r, "orderId"), "err", err)
		httpx.WriteError(w, err)
		return
	}
	if out == nil {
		out = []application.ReleasedItem{}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) inventory(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetInventory(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toView(rec))
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	rec, err := h.service.Restock(r.Context(), chi.URLParam(r, "productId"), req.ProductName, req.Quantity)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toView(rec))
}
