package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the order tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		buyer_email TEXT NOT NULL,
		buyer_name TEXT NOT NULL,
		buyer_phone TEXT NOT NULL DEFAULT '',
		total_amount NUMERIC(12,2) NOT NULL,
		discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		final_amount NUMERIC(12,2) NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		product_id TEXT NOT NULL,
		variant_id TEXT NOT NULL,
		duration TEXT NOT NULL,
		quantity INT NOT NULL,
		unit_price NUMERIC(12,2) NOT NULL,
		line_total NUMERIC(12,2) NOT NULL
	)`)
	return err
}
