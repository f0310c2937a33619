package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premstore/premstore/internal/payment/application"
	"github.com/premstore/premstore/internal/payment/domain"
	"github.com/premstore/premstore/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, s domain.PaymentSession) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payment_sessions
			(payment_id, order_id, price_amount, price_currency, pay_amount, pay_currency, pay_address, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		s.PaymentID, s.OrderID, s.PriceAmount, s.PriceCurrency, s.PayAmount, s.PayCurrency,
		s.PayAddress, s.Status, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *Repository) GetByPaymentID(ctx context.Context, paymentID string) (domain.PaymentSession, error) {
	var s domain.PaymentSession
	err := r.pool.QueryRow(ctx, `SELECT payment_id, order_id, price_amount, price_currency, pay_amount, pay_currency, pay_address, status, created_at, updated_at
		FROM payment_sessions WHERE payment_id=$1`, paymentID).
		Scan(&s.PaymentID, &s.OrderID, &s.PriceAmount, &s.PriceCurrency, &s.PayAmount, &s.PayCurrency,
			&s.PayAddress, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PaymentSession{}, application.ErrUnknownPayment
	}
	if err != nil {
		return domain.PaymentSession{}, err
	}
	return s, nil
}

// ApplyTransition is the conditional write behind the reconciliation engine:
// the session update only matches while status still equals t.From, so a
// concurrent writer that moved the session first makes this a no-op. The
// order update and the fulfillment outbox row commit atomically with it.
func (r *Repository) ApplyTransition(ctx context.Context, t application.Transition) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	now := time.Now().UTC()
	ct, err := tx.Exec(ctx, `UPDATE payment_sessions SET status=$3, updated_at=$4
		WHERE payment_id=$1 AND status=$2`, t.PaymentID, t.From, t.To, now)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status=$2, payment_status=$3, updated_at=$4 WHERE id=$1`,
		t.OrderID, t.OrderStatus, t.PaymentStatus, now)
	if err != nil {
		return false, err
	}

	if t.FulfillmentEvent != nil {
		_, err = tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
			VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
			"order", t.OrderID, "OrderPaid", t.FulfillmentEvent,
			map[string]string{"payment_id": t.PaymentID}, t.Traceparent)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// OutboxStore leases pending fulfillment events for the relay.
type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// expired in_progress leases are reclaimed so a relay crash mid-batch
	// cannot strand fulfillment events
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, type, payload, headers, traceparent, created_at
		FROM outbox
		WHERE status = 'pending'
		   OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var event outbox.Event
		var headers map[string]string
		if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.Type,
			&event.Payload, &headers, &event.Traceparent, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Headers = headers
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}

	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval WHERE id = ANY($3)`,
		relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent' WHERE id = ANY($1)`, ids)
	return err
}

// maxDispatchAttempts caps redelivery of a failing event before it is parked
// as failed for operator attention.
const maxDispatchAttempts = 10

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox
		SET status = CASE WHEN retry_count + 1 >= $3 THEN 'failed' ELSE 'pending' END,
			last_error = $2, retry_count = retry_count + 1,
			relay_id = NULL, lease_until = NULL
		WHERE id = $1`, id, errMsg, maxDispatchAttempts)
	return err
}
