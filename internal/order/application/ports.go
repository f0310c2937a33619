package application

import (
	"context"

	catalogdomain "github.com/premstore/premstore/internal/catalog/domain"
	"github.com/premstore/premstore/internal/order/domain"
)

type OrderRepository interface {
	Save(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, payment domain.PaymentStatus) error
}

type CatalogReader interface {
	Get(ctx context.Context, id string) (catalogdomain.Product, error)
}
