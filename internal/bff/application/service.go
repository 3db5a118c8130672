package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/order-fulfillment/internal/bff/cache"
	"github.com/dmehra2102/order-fulfillment/internal/bff/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/resilience"
)

// Dependencies are the three upstream services, each behind its own executor.
type Dependencies struct {
	Orders    OrderAccessor
	Payments  PaymentAccessor
	Inventory InventoryAccessor

	OrderPolicy     *resilience.Executor
	PaymentPolicy   *resilience.Executor
	InventoryPolicy *resilience.Executor
}

type Service struct {
	log   *slog.Logger
	deps  Dependencies
	cache cache.Cache
	ttl   time.Duration
}

func NewService(log *slog.Logger, deps Dependencies, c cache.Cache, ttl time.Duration) *Service {
	return &Service{log: log, deps: deps, cache: c, ttl: ttl}
}

// CustomerOrders never fails: a cached list is served as is, and when the order service
// is unreachable the result is an empty list. The bool reports that fallback.
func (s *Service) CustomerOrders(ctx context.Context, customerID string) ([]domain.OrderSummaryView, bool) {
	key := cache.CustomerOrdersKey(customerID)
	if views, ok := s.cachedList(ctx, key); ok {
		return views, false
	}

	orders, err := resilience.Do(ctx, s.deps.OrderPolicy, func(ctx context.Context) ([]OrderDTO, error) {
		return s.deps.Orders.ListCustomerOrders(ctx, customerID)
	})
	if err != nil {
		s.log.Warn("customer orders fallback", "customer_id", customerID, "err", err)
		return []domain.OrderSummaryView{}, true
	}

	views := make([]domain.OrderSummaryView, 0, len(orders))
	for _, o := range orders {
		views = append(views, domain.OrderSummaryView{
			OrderID:     o.OrderID,
			OrderNumber: o.OrderNumber,
			TotalAmount: o.TotalAmount,
			Currency:    o.Currency,
			Status:      o.Status,
			OrderDate:   o.OrderDate,
		})
	}
	if len(views) > 0 {
		s.store(ctx, key, views)
	}
	return views, false
}

func (s *Service) cachedList(ctx context.Context, key string) ([]domain.OrderSummaryView, bool) {
	b, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var views []domain.OrderSummaryView
	if err := json.Unmarshal(b, &views); err != nil {
		s.log.Warn("discarding unreadable cache entry", "key", key, "err", err)
		s.cache.Evict(ctx, key)
		return nil, false
	}
	return views, true
}

// OrderDetails fans out to the three services at once on a cache miss. A nil view means
// the order does not exist or the order service is down.
func (s *Service) OrderDetails(ctx context.Context, orderID string) *domain.CustomerOrderView {
	key := cache.OrderDetailsKey(orderID)
	if v, ok := s.cachedView(ctx, key); ok {
		return v
	}

	var (
		order       *OrderDTO
		orderErr    error
		payment     *domain.PaymentInfoView
		inventory   []domain.InventoryInfoView
		payDegraded bool
		invDegraded bool
	)
	var g errgroup.Group
	g.Go(func() error {
		order, orderErr = resilience.Do(ctx, s.deps.OrderPolicy, func(ctx context.Context) (*OrderDTO, error) {
			return s.deps.Orders.GetOrder(ctx, orderID)
		})
		return nil
	})
	g.Go(func() error {
		p, err := resilience.Do(ctx, s.deps.PaymentPolicy, func(ctx context.Context) (*PaymentDTO, error) {
			return s.deps.Payments.GetPaymentByOrder(ctx, orderID)
		})
		switch {
		case err != nil:
			s.log.Warn("payment fallback", "order_id", orderID, "err", err)
			payment, payDegraded = domain.PlaceholderPayment(), true
		case p != nil:
			payment = &domain.PaymentInfoView{
				PaymentID:        p.PaymentID,
				PaymentReference: p.PaymentReference,
				Amount:           p.Amount,
				Currency:         p.Currency,
				Status:           p.Status,
				PaymentMethod:    p.PaymentMethod,
				ProcessedAt:      p.ProcessedAt,
			}
		}
		return nil
	})
	g.Go(func() error {
		res, err := resilience.Do(ctx, s.deps.InventoryPolicy, func(ctx context.Context) ([]ReservationDTO, error) {
			return s.deps.Inventory.GetReservationsByOrder(ctx, orderID)
		})
		if err != nil {
			s.log.Warn("inventory fallback", "order_id", orderID, "err", err)
			inventory, invDegraded = domain.PlaceholderInventory(), true
			return nil
		}
		inventory = make([]domain.InventoryInfoView, 0, len(res))
		for _, r := range res {
			inventory = append(inventory, domain.InventoryInfoView{
				ProductID:            r.ProductID,
				ProductName:          r.ProductName,
				QuantityReserved:     r.QuantityReserved,
				ReservationReference: r.ReservationReference,
				Status:               domain.InventoryStatus(r.Status),
			})
		}
		return nil
	})
	_ = g.Wait()

	if orderErr != nil {
		s.log.Warn("order details fallback", "order_id", orderID, "err", orderErr)
		return nil
	}
	if order == nil {
		return nil
	}

	degraded := payDegraded || invDegraded
	view := &domain.CustomerOrderView{
		OrderID:       order.OrderID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		TotalAmount:   order.TotalAmount,
		Currency:      order.Currency,
		OrderStatus:   order.Status,
		OrderDate:     order.OrderDate,
		Payment:       payment,
		Inventory:     inventory,
		OverallStatus: domain.OverallStatus(payment, inventory),
		Degraded:      degraded,
	}
	if !degraded {
		s.store(ctx, key, view)
	}
	return view
}

func (s *Service) cachedView(ctx context.Context, key string) (*domain.CustomerOrderView, bool) {
	b, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var v domain.CustomerOrderView
	if err := json.Unmarshal(b, &v); err != nil {
		s.log.Warn("discarding unreadable cache entry", "key", key, "err", err)
		s.cache.Evict(ctx, key)
		return nil, false
	}
	return &v, true
}

func (s *Service) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	s.cache.Put(ctx, key, b, s.ttl)
}

// CreateOrder forwards to the order service once; writes are not retried.
func (s *Service) CreateOrder(ctx context.Context, cmd CreateOrder) (*OrderDTO, error) {
	o, err := s.deps.Orders.CreateOrder(ctx, cmd)
	if err != nil {
		s.log.Error("create order via bff failed", "customer_id", cmd.CustomerID, "err", err)
		return nil, err
	}
	s.cache.Evict(ctx, cache.CustomerOrdersKey(o.CustomerID))
	s.log.Info("order created via bff", "order_id", o.OrderID)
	return o, nil
}
