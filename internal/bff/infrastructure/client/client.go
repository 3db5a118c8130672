// Package client reads the owning services over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/order-fulfillment/internal/bff/application"
	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/httpx"
	"github.com/dmehra2102/order-fulfillment/pkg/resilience"
)

const maxBody = 1 << 20

type base struct {
	url  string
	http *http.Client
}

func newBase(baseURL string, hc *http.Client) base {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return base{url: strings.TrimRight(baseURL, "/"), http: hc}
}

// do sends the request and decodes a 2xx body into out. It reports false for 404.
// Other 4xx answers are permanent so they neither retry nor trip the breaker.
func (b base) do(ctx context.Context, method, path string, in, out any) (bool, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return false, resilience.Permanent(err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.url+path, body)
	if err != nil {
		return false, resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := b.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return false, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, resilience.Permanent(upstreamError(resp.StatusCode, raw))
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return true, nil
}

func upstreamError(status int, raw []byte) error {
	var eb httpx.ErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil && eb.Code != "" {
		return apperr.New(apperr.Code(eb.Code), "%s", eb.Message)
	}
	return apperr.New(apperr.CodeValidation, "upstream rejected request with status %d", status)
}

type Orders struct{ base }

func NewOrders(baseURL string, hc *http.Client) *Orders { return &Orders{newBase(baseURL, hc)} }

func (o *Orders) ListCustomerOrders(ctx context.Context, customerID string) ([]application.OrderDTO, error) {
	var out []application.OrderDTO
	if _, err := o.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(customerID)+"/orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orders) GetOrder(ctx context.Context, orderID string) (*application.OrderDTO, error) {
	var out application.OrderDTO
	found, err := o.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

func (o *Orders) CreateOrder(ctx context.Context, cmd application.CreateOrder) (*application.OrderDTO, error) {
	var out application.OrderDTO
	found, err := o.do(ctx, http.MethodPost, "/orders", cmd, &out)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("create order: order service route not found")
	}
	return &out, nil
}

type Payments struct{ base }

func NewPayments(baseURL string, hc *http.Client) *Payments { return &Payments{newBase(baseURL, hc)} }

func (p *Payments) GetPaymentByOrder(ctx context.Context, orderID string) (*application.PaymentDTO, error) {
	var out application.PaymentDTO
	found, err := p.do(ctx, http.MethodGet, "/payments/order/"+url.PathEscape(orderID), nil, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

type Inventory struct{ base }

func NewInventory(baseURL string, hc *http.Client) *Inventory { return &Inventory{newBase(baseURL, hc)} }

func (i *Inventory) GetReservationsByOrder(ctx context.Context, orderID string) ([]application.ReservationDTO, error) {
	out := []application.ReservationDTO{}
	if _, err := i.do(ctx, http.MethodGet, "/reservations/order/"+url.PathEscape(orderID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
