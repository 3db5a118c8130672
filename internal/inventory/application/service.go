package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
)

const (
	ResultReserved        = "RESERVED"
	ResultAlreadyReserved = "ALREADY_RESERVED"

	ReasonPaymentFailed = "PAYMENT_FAILED"
	ReasonExpired       = "EXPIRED"
	ReasonReleased      = "RELEASED"
)

type ItemInput struct {
	ProductID   string
	ProductName string
	Quantity    int
}

type ReserveInventory struct {
	OrderID        string
	CustomerID     string
	Items          []ItemInput
	IdempotencyKey string
}

type ReservedItem struct {
	ProductID         string `json:"productId"`
	ProductName       string `json:"productName"`
	QuantityReserved  int    `json:"quantityReserved"`
	AvailableQuantity int    `json:"availableQuantity"`
}

type ReserveResult struct {
	OrderID    string         `json:"orderId"`
	Reference  string         `json:"reservationReference"`
	Items      []ReservedItem `json:"items"`
	Status     string         `json:"status"`
	ReservedAt time.Time      `json:"reservedAt"`
}

type ReservationView struct {
	ProductID   string                   `json:"productId"`
	ProductName string                   `json:"productName"`
	Quantity    int                      `json:"quantityReserved"`
	Reference   string                   `json:"reservationReference"`
	Status      domain.ReservationStatus `json:"status"`
	ExpiresAt   time.Time                `json:"expiresAt"`
}

type ReleasedItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantityReleased"`
}

// Service owns stock levels. Mutations are serialized so a plan checked against the
// current stock is still valid when it is applied.
type Service struct {
	log   *slog.Logger
	store InventoryStore
	pub   EventPublisher
	guard *idempotency.Guard[ReserveResult]
	ttl   time.Duration
	now   func() time.Time

	mu sync.Mutex
}

func NewService(log *slog.Logger, store InventoryStore, pub EventPublisher, results idempotency.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = domain.DefaultReservationTTL
	}
	return &Service{
		log:   log,
		store: store,
		pub:   pub,
		guard: idempotency.NewGuard[ReserveResult](log, results),
		ttl:   ttl,
		now:   time.Now,
	}
}

// ReserveInventory holds every item of the order or none of them.
func (s *Service) ReserveInventory(ctx context.Context, cmd ReserveInventory) (ReserveResult, error) {
	if cmd.OrderID == "" || cmd.IdempotencyKey == "" {
		return ReserveResult{}, apperr.New(apperr.CodeValidation, "order id and idempotency key are required")
	}
	items, err := mergeItems(cmd.Items)
	if err != nil {
		return ReserveResult{}, err
	}
	cmd.Items = items

	res, _, err := s.guard.Resolve(ctx, cmd.IdempotencyKey, func(ctx context.Context) (ReserveResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.reserve(ctx, cmd)
	})
	return res, err
}

func mergeItems(in []ItemInput) ([]ItemInput, error) {
	if len(in) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "at least one item is required")
	}
	var out []ItemInput
	pos := map[string]int{}
	for _, it := range in {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, apperr.New(apperr.CodeValidation, "item %q needs a product id and a positive quantity", it.ProductID)
		}
		if i, ok := pos[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		pos[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}

func (s *Service) reserve(ctx context.Context, cmd ReserveInventory) (ReserveResult, error) {
	now := s.now()
	records := make([]*domain.Record, len(cmd.Items))
	var created []*domain.Record
	for i, it := range cmd.Items {
		rec, err := s.store.FindByProductID(ctx, it.ProductID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rec = domain.NewRecord(it.ProductID, it.ProductName, 0, now)
			created = append(created, rec)
		case err != nil:
			return ReserveResult{}, fmt.Errorf("load %s: %w", it.ProductID, err)
		}
		records[i] = rec
	}

	for _, rec := range records {
		if rec.Held(cmd.OrderID) != nil {
			return s.alreadyReserved(ctx, cmd, records, now)
		}
	}

	for i, it := range cmd.Items {
		if !records[i].CanReserve(it.Quantity) {
			for _, rec := range created {
				if err := s.store.Save(ctx, rec); err != nil {
					s.log.Warn("empty inventory record not stored", "product_id", rec.ProductID, "err", err)
				}
			}
			return ReserveResult{}, apperr.New(apperr.CodeInsufficientStock,
				"Insufficient inventory for product: %s. Available: %d, Requested: %d",
				displayName(records[i], it), records[i].Available, it.Quantity)
		}
	}

	ref := domain.NewReference(now)
	reservations := make([]*domain.Reservation, len(records))
	for i, it := range cmd.Items {
		res, err := records[i].Reserve(cmd.OrderID, it.Quantity, ref, now, s.ttl)
		if err != nil {
			return ReserveResult{}, err
		}
		reservations[i] = res
	}
	for i, rec := range records {
		if err := s.store.Save(ctx, rec); err != nil {
			s.compensate(ctx, cmd.OrderID, records[:i])
			return ReserveResult{}, fmt.Errorf("save %s: %w", rec.ProductID, err)
		}
	}

	if err := s.publishReserved(ctx, cmd, records, reservations); err != nil {
		return ReserveResult{}, err
	}
	s.log.Info("inventory reserved", "order_id", cmd.OrderID, "reference", ref, "items", len(records))
	return resultOf(cmd.OrderID, ResultReserved, records, reservations, now), nil
}

func displayName(rec *domain.Record, it ItemInput) string {
	if rec.ProductName != "" {
		return rec.ProductName
	}
	if it.ProductName != "" {
		return it.ProductName
	}
	return it.ProductID
}

// alreadyReserved answers a redelivery whose result was never stored. The pending
// reservations are announced again so a lost publish is recovered.
func (s *Service) alreadyReserved(ctx context.Context, cmd ReserveInventory, records []*domain.Record, now time.Time) (ReserveResult, error) {
	var (
		held, pending   []*domain.Record
		res, pendingRes []*domain.Reservation
	)
	for _, rec := range records {
		r := rec.Held(cmd.OrderID)
		if r == nil {
			continue
		}
		held = append(held, rec)
		res = append(res, r)
		if r.Status == domain.ReservationPending {
			pending = append(pending, rec)
			pendingRes = append(pendingRes, r)
		}
	}
	if err := s.publishReserved(ctx, cmd, pending, pendingRes); err != nil {
		return ReserveResult{}, err
	}
	s.log.Info("inventory already reserved", "order_id", cmd.OrderID)
	return resultOf(cmd.OrderID, ResultAlreadyReserved, held, res, now), nil
}

func (s *Service) compensate(ctx context.Context, orderID string, saved []*domain.Record) {
	for _, rec := range saved {
		if _, err := rec.Release(orderID, s.now()); err != nil {
			s.log.Error("compensation release failed", "order_id", orderID, "product_id", rec.ProductID, "err", err)
			continue
		}
		if err := s.store.Save(ctx, rec); err != nil {
			s.log.Error("compensation save failed", "order_id", orderID, "product_id", rec.ProductID, "err", err)
		}
	}
}

func (s *Service) publishReserved(ctx context.Context, cmd ReserveInventory, records []*domain.Record, reservations []*domain.Reservation) error {
	for i, rec := range records {
		res := reservations[i]
		ev := events.InventoryReserved{
			Envelope:             events.NewEnvelope(events.TypeInventoryReserved, rec.ProductID, s.now()),
			OrderID:              cmd.OrderID,
			CustomerID:           cmd.CustomerID,
			ProductID:            rec.ProductID,
			ProductName:          rec.ProductName,
			QuantityReserved:     res.Quantity,
			ReservationReference: res.Reference,
		}
		if err := s.pub.Publish(ctx, ev); err != nil {
			return fmt.Errorf("publish %s for %s: %w", events.TypeInventoryReserved, rec.ProductID, err)
		}
	}
	return nil
}

func resultOf(orderID, status string, records []*domain.Record, reservations []*domain.Reservation, now time.Time) ReserveResult {
	out := ReserveResult{OrderID: orderID, Status: status, ReservedAt: now.UTC(), Reference: "N/A"}
	for i, rec := range records {
		if i == 0 {
			out.Reference = reservations[i].Reference
		}
		out.Items = append(out.Items, ReservedItem{
			ProductID:         rec.ProductID,
			ProductName:       rec.ProductName,
			QuantityReserved:  reservations[i].Quantity,
			AvailableQuantity: rec.Available,
		})
	}
	return out
}

// ReleaseReservation returns everything the order holds to stock. Releasing twice is a no-op.
func (s *Service) ReleaseReservation(ctx context.Context, orderID, reason string) ([]ReleasedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	var touched []*domain.Record
	for _, rec := range records {
		res := rec.Held(orderID)
		if res == nil {
			continue
		}
		if res.Status == domain.ReservationConfirmed {
			return nil, apperr.New(apperr.CodeReservationConfirmed, "order %s holds a confirmed reservation of %s", orderID, rec.ProductID)
		}
		touched = append(touched, rec)
	}

	now := s.now()
	var out []ReleasedItem
	for _, rec := range touched {
		res, err := rec.Release(orderID, now)
		if err != nil {
			return out, err
		}
		if err := s.store.Save(ctx, rec); err != nil {
			return out, fmt.Errorf("save %s: %w", rec.ProductID, err)
		}
		item := ReleasedItem{ProductID: rec.ProductID, ProductName: rec.ProductName, Quantity: res.Quantity}
		out = append(out, item)
		if err := s.publishReleased(ctx, orderID, item, reason); err != nil {
			return out, err
		}
	}
	if len(out) > 0 {
		s.log.Info("inventory released", "order_id", orderID, "reason", reason, "items", len(out))
	}
	return out, nil
}

func (s *Service) publishReleased(ctx context.Context, orderID string, item ReleasedItem, reason string) error {
	ev := events.InventoryReleased{
		Envelope:         events.NewEnvelope(events.TypeInventoryReleased, item.ProductID, s.now()),
		OrderID:          orderID,
		ProductID:        item.ProductID,
		ProductName:      item.ProductName,
		QuantityReleased: item.Quantity,
		Reason:           reason,
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish %s for %s: %w", events.TypeInventoryReleased, item.ProductID, err)
	}
	return nil
}

// ConfirmReservation finalizes the sale of every pending reservation of the order. The
// order's holds are confirmed all together or not at all.
func (s *Service) ConfirmReservation(ctx context.Context, orderID string) ([]ReservationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}
	var held []*domain.Record
	for _, rec := range records {
		res := rec.Held(orderID)
		if res == nil {
			continue
		}
		if res.Status != domain.ReservationPending {
			return nil, apperr.New(apperr.CodeInvalidTransition,
				"reservation %s is %s, only pending reservations can be confirmed", res.Reference, res.Status)
		}
		held = append(held, rec)
	}
	if len(held) == 0 {
		return nil, apperr.New(apperr.CodeNotFound, "no reservations for order %s", orderID)
	}

	now := s.now()
	before := make([]*domain.Record, len(held))
	out := make([]ReservationView, 0, len(held))
	for i, rec := range held {
		before[i] = rec.Clone()
		res, err := rec.Confirm(orderID, now)
		if err != nil {
			return nil, err
		}
		out = append(out, viewOf(rec, res))
	}
	for i, rec := range held {
		if err := s.store.Save(ctx, rec); err != nil {
			s.restore(ctx, orderID, before[:i])
			return nil, fmt.Errorf("save %s: %w", rec.ProductID, err)
		}
	}
	s.log.Info("reservations confirmed", "order_id", orderID, "items", len(out))
	return out, nil
}

// restore writes back records saved before a later save of the same batch failed.
func (s *Service) restore(ctx context.Context, orderID string, saved []*domain.Record) {
	for _, rec := range saved {
		if err := s.store.Save(ctx, rec); err != nil {
			s.log.Error("confirm rollback failed", "order_id", orderID, "product_id", rec.ProductID, "err", err)
		}
	}
}

// ExpireReservations returns the units of every pending reservation past expiry.
func (s *Service) ExpireReservations(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load inventory: %w", err)
	}
	n := 0
	for _, rec := range records {
		expired := rec.Expire(now)
		if len(expired) == 0 {
			continue
		}
		if err := s.store.Save(ctx, rec); err != nil {
			return n, fmt.Errorf("save %s: %w", rec.ProductID, err)
		}
		for _, res := range expired {
			n++
			item := ReleasedItem{ProductID: rec.ProductID, ProductName: rec.ProductName, Quantity: res.Quantity}
			if err := s.publishReleased(ctx, res.OrderID, item, ReasonExpired); err != nil {
				return n, err
			}
		}
	}
	if n > 0 {
		s.log.Info("reservations expired", "count", n)
	}
	return n, nil
}

// RunSweeper expires reservations every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.ExpireReservations(ctx, s.now()); err != nil {
				s.log.Error("reservation sweep failed", "err", err)
			}
		}
	}
}

func (s *Service) Restock(ctx context.Context, productID, productName string, qty int) (*domain.Record, error) {
	if productID == "" {
		return nil, apperr.New(apperr.CodeValidation, "product id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, err := s.store.FindByProductID(ctx, productID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rec = domain.NewRecord(productID, productName, 0, now)
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", productID, err)
	}
	if productName != "" {
		rec.ProductName = productName
	}
	if err := rec.Restock(qty, now); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save %s: %w", productID, err)
	}
	s.log.Info("inventory restocked", "product_id", productID, "added", qty, "available", rec.Available)
	return rec, nil
}

func (s *Service) GetInventory(ctx context.Context, productID string) (*domain.Record, error) {
	rec, err := s.store.FindByProductID(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "no inventory for product %s", productID)
	}
	return rec, err
}

func (s *Service) GetReservationsByOrder(ctx context.Context, orderID string) ([]ReservationView, error) {
	records, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := []ReservationView{}
	for _, rec := range records {
		for _, res := range rec.Reservations {
			if res.OrderID == orderID {
				out = append(out, viewOf(rec, res))
			}
		}
	}
	return out, nil
}

func viewOf(rec *domain.Record, res *domain.Reservation) ReservationView {
	return ReservationView{
		ProductID:   rec.ProductID,
		ProductName: rec.ProductName,
		Quantity:    res.Quantity,
		Reference:   res.Reference,
		Status:      res.Status,
		ExpiresAt:   res.ExpiresAt,
	}
}

// HandleEvent reserves stock for paid orders and releases it for failed payments.
func (s *Service) HandleEvent(ctx context.Context, e events.Event) error {
	switch ev := e.(type) {
	case events.PaymentCompleted:
		cmd := ReserveInventory{
			OrderID:        ev.OrderID,
			CustomerID:     ev.CustomerID,
			IdempotencyKey: "payment-" + ev.OrderID,
		}
		for _, it := range ev.Items {
			cmd.Items = append(cmd.Items, ItemInput{ProductID: it.ProductID, ProductName: it.ProductName, Quantity: it.Quantity})
		}
		_, err := s.ReserveInventory(ctx, cmd)
		return err
	case events.PaymentFailed:
		_, err := s.ReleaseReservation(ctx, ev.OrderID, ReasonPaymentFailed)
		return err
	default:
		return messaging.ErrIgnored
	}
}
