package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/money"
)

const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	id              TEXT PRIMARY KEY,
	order_id        TEXT NOT NULL UNIQUE,
	customer_id     TEXT NOT NULL,
	reference       TEXT NOT NULL UNIQUE,
	amount          NUMERIC(14,2) NOT NULL,
	currency        CHAR(3) NOT NULL,
	method          TEXT NOT NULL,
	status          TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	failure_reason  TEXT NOT NULL DEFAULT '',
	processed_at    TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS payments_customer_idx ON payments (customer_id, created_at DESC);
`

const uniqueViolation = "23505"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return err
}

func (r *Repository) Save(ctx context.Context, p *domain.Payment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payments
		(id, order_id, customer_id, reference, amount, currency, method, status, idempotency_key, failure_reason, processed_at, created_at)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET status=$8, failure_reason=$10, processed_at=$11`,
		p.ID, p.OrderID, p.CustomerID, p.Reference, p.Amount.Amount().String(), p.Amount.Currency(),
		p.Method, p.Status, p.IdempotencyKey, p.FailureReason, p.ProcessedAt, p.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

const selectPayment = `SELECT id, order_id, customer_id, reference, amount::text, currency, method, status,
	idempotency_key, failure_reason, processed_at, created_at FROM payments`

func (r *Repository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, selectPayment+` WHERE order_id=$1`, orderID)
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	return r.findOne(ctx, selectPayment+` WHERE idempotency_key=$1`, key)
}

func (r *Repository) findOne(ctx context.Context, q string, arg string) (*domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *Repository) ExistsByOrderID(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE order_id=$1)`, orderID).Scan(&exists)
	return exists, err
}

func (r *Repository) FindByCustomer(ctx context.Context, customerID string) ([]*domain.Payment, error) {
	rows, err := r.pool.Query(ctx, selectPayment+` WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var (
		p        domain.Payment
		amount   string
		currency string
	)
	if err := row.Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.Reference, &amount, &currency, &p.Method, &p.Status,
		&p.IdempotencyKey, &p.FailureReason, &p.ProcessedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	m, err := money.Parse(amount, currency)
	if err != nil {
		return nil, err
	}
	p.Amount = m
	return &p, nil
}
