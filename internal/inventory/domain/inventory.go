package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
)

var ErrNotFound = errors.New("inventory record not found")

type RecordStatus string

const (
	StatusAvailable  RecordStatus = "AVAILABLE"
	StatusReserved   RecordStatus = "RESERVED"
	StatusOutOfStock RecordStatus = "OUT_OF_STOCK"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

const DefaultReservationTTL = 24 * time.Hour

type Reservation struct {
	ID        string
	OrderID   string
	Quantity  int
	Reference string
	Status    ReservationStatus
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Record is the stock of one product. Available and Reserved never go negative.
type Record struct {
	ProductID    string
	ProductName  string
	Available    int
	Reserved     int
	Reservations []*Reservation
	UpdatedAt    time.Time
}

func NewRecord(productID, productName string, available int, now time.Time) *Record {
	return &Record{ProductID: productID, ProductName: productName, Available: available, UpdatedAt: now.UTC()}
}

// NewReference returns RES-<unix millis>-<8 upper-case hex chars>.
func NewReference(now time.Time) string {
	return fmt.Sprintf("RES-%d-%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}

func (r *Record) Status() RecordStatus {
	switch {
	case r.Available == 0 && r.Reserved == 0:
		return StatusOutOfStock
	case r.Available == 0:
		return StatusReserved
	default:
		return StatusAvailable
	}
}

func (r *Record) CanReserve(qty int) bool {
	return qty > 0 && r.Available >= qty
}

// Held returns the reservation of orderID that has not been cancelled, if any.
func (r *Record) Held(orderID string) *Reservation {
	for _, res := range r.Reservations {
		if res.OrderID == orderID && res.Status != ReservationCancelled {
			return res
		}
	}
	return nil
}

func (r *Record) Reserve(orderID string, qty int, reference string, now time.Time, ttl time.Duration) (*Reservation, error) {
	if qty <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be positive, got %d", qty)
	}
	if r.Held(orderID) != nil {
		return nil, apperr.New(apperr.CodeInvalidTransition, "order %s already holds %s", orderID, r.ProductID)
	}
	if !r.CanReserve(qty) {
		return nil, apperr.New(apperr.CodeInsufficientStock,
			"Insufficient inventory for product: %s. Available: %d, Requested: %d", r.ProductName, r.Available, qty)
	}
	now = now.UTC()
	res := &Reservation{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Quantity:  qty,
		Reference: reference,
		Status:    ReservationPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	r.Available -= qty
	r.Reserved += qty
	r.Reservations = append(r.Reservations, res)
	r.UpdatedAt = now
	return res, nil
}

// Release cancels the pending reservation of orderID and returns its units to stock.
// It returns nil when nothing is held; expired reservations are only marked cancelled.
func (r *Record) Release(orderID string, now time.Time) (*Reservation, error) {
	res := r.Held(orderID)
	if res == nil {
		return nil, nil
	}
	switch res.Status {
	case ReservationConfirmed:
		return nil, apperr.New(apperr.CodeReservationConfirmed, "reservation %s for %s is confirmed and cannot be released", res.Reference, r.ProductID)
	case ReservationPending:
		r.Available += res.Quantity
		r.Reserved -= res.Quantity
	}
	res.Status = ReservationCancelled
	r.UpdatedAt = now.UTC()
	return res, nil
}

// Confirm finalizes the sale of a pending reservation; its units leave stock.
func (r *Record) Confirm(orderID string, now time.Time) (*Reservation, error) {
	res := r.Held(orderID)
	if res == nil {
		return nil, apperr.New(apperr.CodeNotFound, "no reservation of %s for order %s", r.ProductID, orderID)
	}
	if res.Status != ReservationPending {
		return nil, apperr.New(apperr.CodeInvalidTransition, "reservation %s is %s, only pending reservations can be confirmed", res.Reference, res.Status)
	}
	res.Status = ReservationConfirmed
	r.Reserved -= res.Quantity
	r.UpdatedAt = now.UTC()
	return res, nil
}

// Expire moves every pending reservation past its expiry to Expired and returns their units.
func (r *Record) Expire(now time.Time) []*Reservation {
	var out []*Reservation
	for _, res := range r.Reservations {
		if res.Status == ReservationPending && now.After(res.ExpiresAt) {
			res.Status = ReservationExpired
			r.Available += res.Quantity
			r.Reserved -= res.Quantity
			out = append(out, res)
		}
	}
	if len(out) > 0 {
		r.UpdatedAt = now.UTC()
	}
	return out
}

func (r *Record) Restock(qty int, now time.Time) error {
	if qty <= 0 {
		return apperr.New(apperr.CodeValidation, "restock quantity must be positive, got %d", qty)
	}
	r.Available += qty
	r.UpdatedAt = now.UTC()
	return nil
}

func (r *Record) Clone() *Record {
	c := *r
	c.Reservations = make([]*Reservation, len(r.Reservations))
	for i, res := range r.Reservations {
		cp := *res
		c.Reservations[i] = &cp
	}
	return &c
}
