package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/events"
	"github.com/dmehra2102/order-fulfillment/pkg/money"
	"github.com/dmehra2102/order-fulfillment/pkg/outbox"
)

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id           TEXT PRIMARY KEY,
	order_number TEXT NOT NULL UNIQUE,
	customer_id  TEXT NOT NULL,
	total_amount NUMERIC(14,2) NOT NULL,
	currency     CHAR(3) NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_customer_idx ON orders (customer_id, created_at DESC);
CREATE TABLE IF NOT EXISTS order_items (
	order_id     TEXT NOT NULL REFERENCES orders(id),
	position     INT NOT NULL,
	product_id   TEXT NOT NULL,
	product_name TEXT NOT NULL,
	quantity     INT NOT NULL CHECK (quantity > 0),
	unit_price   NUMERIC(14,2) NOT NULL,
	reserved     BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (order_id, product_id)
);
`

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

func (r *Repository) Save(ctx context.Context, o *domain.Order) error {
	return r.SaveWithEvents(ctx, o)
}

// SaveWithEvents upserts o and its items and appends evs to the outbox in the same
// transaction.
func (r *Repository) SaveWithEvents(ctx context.Context, o *domain.Order, evs ...events.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (id, order_number, customer_id, total_amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4::numeric,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET status=$6, updated_at=$8`,
		o.ID, o.OrderNumber, o.CustomerID, o.Total.Amount().String(), o.Total.Currency(), o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, position, product_id, product_name, quantity, unit_price, reserved)
			VALUES ($1,$2,$3,$4,$5,$6::numeric,$7)
			ON CONFLICT (order_id, product_id) DO UPDATE SET reserved=$7`,
			o.ID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice.Amount().String(), item.Reserved)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert order items: %w", err)
	}
	for _, e := range evs {
		rec, err := outbox.NewRecord(ctx, e)
		if err != nil {
			return err
		}
		if err := outbox.AppendTx(ctx, tx, rec); err != nil {
			return fmt.Errorf("outbox append %s: %w", rec.Type, err)
		}
	}
	return tx.Commit(ctx)
}

const selectOrder = `SELECT id, order_number, customer_id, total_amount::text, currency, status, created_at, updated_at FROM orders`

func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) FindByCustomer(ctx context.Context, customerID string) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrder+` WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) ExistsByOrderNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number=$1)`, number).Scan(&exists)
	return exists, err
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o        domain.Order
		amount   string
		currency string
	)
	if err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &amount, &currency, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	total, err := money.Parse(amount, currency)
	if err != nil {
		return nil, err
	}
	o.Total = total
	return &o, nil
}

func (r *Repository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := r.pool.Query(ctx, `SELECT order_id, product_id, product_name, quantity, unit_price::text, reserved
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID string
			item    domain.OrderItem
			price   string
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.Quantity, &price, &item.Reserved); err != nil {
			return err
		}
		o := byID[orderID]
		if item.UnitPrice, err = money.Parse(price, o.Total.Currency()); err != nil {
			return err
		}
		o.Items = append(o.Items, item)
	}
	return rows.Err()
}
