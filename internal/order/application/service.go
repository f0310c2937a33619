package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/premstore/premstore/internal/order/domain"
)

var (
	ErrNotFound       = errors.New("order not found")
	ErrEmptyOrder     = errors.New("order has no items")
	ErrUnknownProduct = errors.New("unknown product")
	ErrUnknownVariant = errors.New("unknown product variant")
)

type Service struct {
	repo    OrderRepository
	catalog CatalogReader
}

func NewService(repo OrderRepository, catalog CatalogReader) *Service {
	return &Service{repo: repo, catalog: catalog}
}

type ItemRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

// PlaceOrder prices every requested item against the catalog and persists the
// order in pending/pending. Client-supplied prices are never trusted.
func (s *Service) PlaceOrder(ctx context.Context, buyer domain.Buyer, reqs []ItemRequest, notes string) (domain.Order, error) {
	if len(reqs) == 0 {
		return domain.Order{}, ErrEmptyOrder
	}

	items := make([]domain.OrderItem, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("invalid quantity %d for product %s", req.Quantity, req.ProductID)
		}
		p, err := s.catalog.Get(ctx, req.ProductID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrUnknownProduct, req.ProductID)
		}
		v, ok := p.Variant(req.VariantID)
		if !ok {
			return domain.Order{}, fmt.Errorf("%w: %s/%s", ErrUnknownVariant, req.ProductID, req.VariantID)
		}
		items = append(items, domain.OrderItem{
			ProductID: p.ID,
			VariantID: v.ID,
			Duration:  v.Duration,
			Quantity:  req.Quantity,
			UnitPrice: v.Price,
		})
	}

	o := domain.NewOrder(uuid.NewString(), buyer, items, decimal.Zero, notes)
	if err := s.repo.Save(ctx, o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.Get(ctx, id)
}
