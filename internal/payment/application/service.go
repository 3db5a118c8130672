package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/apperr"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/idempotency"
	"github.com/dmehra2102/order-fulfillment/pkg/messaging"
	"github.com/dmehra2102/order-fulfillment/pkg/money"
)

type ProcessPayment struct {
	OrderID        string
	CustomerID     string
	Amount         decimal.Decimal
	Currency       string
	Method         string
	IdempotencyKey string
	// Items are forwarded on PaymentCompleted so inventory knows what to reserve.
	Items []events.LineItem
}

type Result struct {
	PaymentID     string          `json:"paymentId"`
	OrderID       string          `json:"orderId"`
	Reference     string          `json:"paymentReference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        domain.Status   `json:"status"`
	Method        domain.Method   `json:"paymentMethod"`
	FailureReason string          `json:"failureReason,omitempty"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
}

func resultOf(p *domain.Payment) Result {
	return Result{
		PaymentID:     p.ID,
		OrderID:       p.OrderID,
		Reference:     p.Reference,
		Amount:        p.Amount.Amount(),
		Currency:      p.Amount.Currency(),
		Status:        p.Status,
		Method:        p.Method,
		FailureReason: p.FailureReason,
		ProcessedAt:   p.ProcessedAt,
	}
}

type Service struct {
	log   *slog.Logger
	store PaymentStore
	pub   EventPublisher
	auth  domain.Authorizer
	guard *idempotency.Guard[Result]
	now   func() time.Time
}

func NewService(log *slog.Logger, store PaymentStore, pub EventPublisher, auth domain.Authorizer, results idempotency.Store) *Service {
	return &Service{
		log:   log,
		store: store,
		pub:   pub,
		auth:  auth,
		guard: idempotency.NewGuard[Result](log, results),
		now:   time.Now,
	}
}

// ProcessPayment charges an order at most once per idempotency key. A replay returns
// the first result and publishes nothing.
func (s *Service) ProcessPayment(ctx context.Context, cmd ProcessPayment) (Result, error) {
	if cmd.IdempotencyKey == "" || cmd.OrderID == "" {
		return Result{}, apperr.New(apperr.CodeValidation, "order id and idempotency key are required")
	}
	res, replayed, err := s.guard.Resolve(ctx, cmd.IdempotencyKey, func(ctx context.Context) (Result, error) {
		return s.process(ctx, cmd)
	})
	if err != nil {
		return Result{}, err
	}
	if replayed {
		s.log.Info("payment already processed", "order_id", cmd.OrderID, "idempotency_key", cmd.IdempotencyKey)
	}
	return res, nil
}

func (s *Service) process(ctx context.Context, cmd ProcessPayment) (Result, error) {
	// a stored payment without a stored result means the last attempt died before
	// publishing; announce it again and let downstream dedupe
	existing, err := s.store.FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
	switch {
	case err == nil:
		if err := s.publishOutcome(ctx, existing, cmd.Items); err != nil {
			return Result{}, err
		}
		return resultOf(existing), nil
	case !errors.Is(err, domain.ErrNotFound):
		return Result{}, fmt.Errorf("find payment by key: %w", err)
	}

	exists, err := s.store.ExistsByOrderID(ctx, cmd.OrderID)
	if err != nil {
		return Result{}, fmt.Errorf("check payment for order: %w", err)
	}
	if exists {
		return Result{}, apperr.New(apperr.CodePaymentExists, "payment already exists for order %s", cmd.OrderID)
	}

	method, err := domain.ParseMethod(cmd.Method)
	if err != nil {
		return Result{}, err
	}
	amount, err := money.New(cmd.Amount, cmd.Currency)
	if err != nil {
		return Result{}, apperr.New(apperr.CodeValidation, "%v", err)
	}

	now := s.now()
	p := domain.NewPayment(cmd.OrderID, cmd.CustomerID, amount, method, cmd.IdempotencyKey, now)
	decision, err := s.auth.Authorize(ctx, amount, method)
	if err != nil {
		return Result{}, fmt.Errorf("authorize payment: %w", err)
	}
	if decision.Approved {
		err = p.Complete(now)
	} else {
		err = p.Fail(decision.Reason, now)
	}
	if err != nil {
		return Result{}, err
	}

	if err := s.store.Save(ctx, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			winner, ferr := s.store.FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
			if ferr == nil {
				return resultOf(winner), nil
			}
			return Result{}, apperr.New(apperr.CodePaymentExists, "payment already exists for order %s", cmd.OrderID)
		}
		return Result{}, fmt.Errorf("save payment: %w", err)
	}

	if err := s.publishOutcome(ctx, p, cmd.Items); err != nil {
		return Result{}, err
	}
	s.log.Info("payment processed", "order_id", p.OrderID, "reference", p.Reference, "status", p.Status)
	return resultOf(p), nil
}

func (s *Service) publishOutcome(ctx context.Context, p *domain.Payment, items []events.LineItem) error {
	var ev events.Event
	switch p.Status {
	case domain.StatusCompleted:
		ev = events.PaymentCompleted{
			Envelope:         events.NewEnvelope(events.TypePaymentCompleted, p.ID, s.now()),
			OrderID:          p.OrderID,
			CustomerID:       p.CustomerID,
			PaymentReference: p.Reference,
			Amount:           p.Amount.Amount(),
			Currency:         p.Amount.Currency(),
			PaymentMethod:    string(p.Method),
			Items:            items,
		}
	case domain.StatusFailed:
		ev = events.PaymentFailed{
			Envelope:         events.NewEnvelope(events.TypePaymentFailed, p.ID, s.now()),
			OrderID:          p.OrderID,
			CustomerID:       p.CustomerID,
			PaymentReference: p.Reference,
			Amount:           p.Amount.Amount(),
			Currency:         p.Amount.Currency(),
			FailureReason:    p.FailureReason,
		}
	default:
		return nil
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Meta().EventType, err)
	}
	return nil
}

func (s *Service) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	p, err := s.store.FindByOrderID(ctx, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "no payment for order %s", orderID)
	}
	return p, err
}

func (s *Service) ListCustomerPayments(ctx context.Context, customerID string) ([]*domain.Payment, error) {
	return s.store.FindByCustomer(ctx, customerID)
}

// HandleEvent charges newly created orders with the default method.
func (s *Service) HandleEvent(ctx context.Context, e events.Event) error {
	ev, ok := e.(events.OrderCreated)
	if !ok {
		return messaging.ErrIgnored
	}
	_, err := s.ProcessPayment(ctx, ProcessPayment{
		OrderID:        ev.AggregateID,
		CustomerID:     ev.CustomerID,
		Amount:         ev.TotalAmount,
		Currency:       ev.Currency,
		Method:         string(domain.MethodCreditCard),
		IdempotencyKey: "order-" + ev.AggregateID,
		Items:          ev.Items,
	})
	return err
}
