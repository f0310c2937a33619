package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premstore/premstore/internal/order/application"
	"github.com/premstore/premstore/internal/order/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Save(ctx context.Context, o domain.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders
			(id, buyer_id, buyer_email, buyer_name, buyer_phone, total_amount, discount_amount, final_amount,
			 status, payment_status, payment_method, notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		o.ID, o.Buyer.ID, o.Buyer.Email, o.Buyer.Name, o.Buyer.Phone,
		o.TotalAmount, o.DiscountAmount, o.FinalAmount,
		o.Status, o.PaymentStatus, o.PaymentMethod, o.Notes, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, variant_id, duration, quantity, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, item.ProductID, item.VariantID, item.Duration, item.Quantity, item.UnitPrice, item.LineTotal)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, buyer_id, buyer_email, buyer_name, buyer_phone,
			total_amount, discount_amount, final_amount, status, payment_status, payment_method, notes,
			created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.Buyer.ID, &o.Buyer.Email, &o.Buyer.Name, &o.Buyer.Phone,
			&o.TotalAmount, &o.DiscountAmount, &o.FinalAmount, &o.Status, &o.PaymentStatus,
			&o.PaymentMethod, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, application.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT product_id, variant_id, duration, quantity, unit_price, line_total
		FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.VariantID, &item.Duration, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return domain.Order{}, err
		}
		o.Items = append(o.Items, item)
	}
	return o, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, payment domain.PaymentStatus) error {
	ct, err := r.pool.Exec(ctx, `UPDATE orders SET status=$2, payment_status=$3, updated_at=$4 WHERE id=$1`,
		id, status, payment, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return application.ErrNotFound
	}
	return nil
}
