package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the payment session table and the fulfillment outbox
// if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS payment_sessions (
		payment_id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		price_amount NUMERIC(12,2) NOT NULL,
		price_currency TEXT NOT NULL,
		pay_amount NUMERIC(24,12) NOT NULL,
		pay_currency TEXT NOT NULL,
		pay_address TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		headers JSONB NOT NULL DEFAULT '{}',
		traceparent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		relay_id TEXT,
		lease_until TIMESTAMPTZ,
		retry_count INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	return err
}
