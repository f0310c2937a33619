package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/premstore/premstore/internal/catalog/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx, `SELECT id, name, slug, category, description, logo_url, active, created_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Category, &p.Description, &p.LogoURL, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, duration, price FROM product_variants WHERE product_id=$1 ORDER BY price`, id)
	if err != nil {
		return domain.Product{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.Duration, &v.Price); err != nil {
			return domain.Product{}, err
		}
		p.Variants = append(p.Variants, v)
	}
	return p, rows.Err()
}

func (r *Repository) List(ctx context.Context, f domain.ListFilter) ([]domain.Product, int, error) {
	where := `WHERE active`
	args := []any{}
	if f.Category != "" {
		args = append(args, f.Category)
		where += fmt.Sprintf(` AND category=$%d`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	q := fmt.Sprintf(`SELECT id, name, slug, category, description, logo_url, active, created_at
		FROM products %s ORDER BY name LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Category, &p.Description, &p.LogoURL, &p.Active, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}
