package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
)

const Schema = `
CREATE TABLE IF NOT EXISTS inventory (
	product_id   TEXT PRIMARY KEY,
	product_name TEXT NOT NULL,
	available    INT NOT NULL CHECK (available >= 0),
	reserved     INT NOT NULL CHECK (reserved >= 0),
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS inventory_reservations (
	id         TEXT PRIMARY KEY,
	product_id TEXT NOT NULL REFERENCES inventory(product_id),
	order_id   TEXT NOT NULL,
	quantity   INT NOT NULL CHECK (quantity > 0),
	reference  TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS inventory_reservations_held_idx
	ON inventory_reservations (product_id, order_id) WHERE status <> 'CANCELLED';
CREATE INDEX IF NOT EXISTS inventory_reservations_order_idx ON inventory_reservations (order_id);
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

// Save writes the record and its reservations in one transaction. Reservations are
// never deleted, only their status moves.
func (r *Repository) Save(ctx context.Context, rec *domain.Record) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO inventory (product_id, product_name, available, reserved, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (product_id) DO UPDATE SET product_name=$2, available=$3, reserved=$4, updated_at=$5`,
		rec.ProductID, rec.ProductName, rec.Available, rec.Reserved, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}

	batch := &pgx.Batch{}
	for _, res := range rec.Reservations {
		batch.Queue(`INSERT INTO inventory_reservations (id, product_id, order_id, quantity, reference, status, created_at, expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET status=$6`,
			res.ID, rec.ProductID, res.OrderID, res.Quantity, res.Reference, res.Status, res.CreatedAt, res.ExpiresAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert reservations: %w", err)
	}
	return tx.Commit(ctx)
}

const selectRecord = `SELECT product_id, product_name, available, reserved, updated_at FROM inventory`

func (r *Repository) FindByProductID(ctx context.Context, productID string) (*domain.Record, error) {
	var rec domain.Record
	err := r.pool.QueryRow(ctx, selectRecord+` WHERE product_id=$1`, productID).
		Scan(&rec.ProductID, &rec.ProductName, &rec.Available, &rec.Reserved, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadReservations(ctx, []*domain.Record{&rec}); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repository) FindAll(ctx context.Context) ([]*domain.Record, error) {
	rows, err := r.pool.Query(ctx, selectRecord+` ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var rec domain.Record
		if err := rows.Scan(&rec.ProductID, &rec.ProductName, &rec.Available, &rec.Reserved, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadReservations(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) loadReservations(ctx context.Context, records []*domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Record, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		byID[rec.ProductID] = rec
		ids = append(ids, rec.ProductID)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, product_id, order_id, quantity, reference, status, created_at, expires_at
		FROM inventory_reservations WHERE product_id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			res       domain.Reservation
			productID string
		)
		if err := rows.Scan(&res.ID, &productID, &res.OrderID, &res.Quantity, &res.Reference, &res.Status, &res.CreatedAt, &res.ExpiresAt); err != nil {
			return err
		}
		rec := byID[productID]
		rec.Reservations = append(rec.Reservations, &res)
	}
	return rows.Err()
}
