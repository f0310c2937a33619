package application

import (
	"context"

	"github.com/shopspring/decimal"

	orderdomain "github.com/premstore/premstore/internal/order/domain"
	"github.com/premstore/premstore/internal/payment/domain"
)

// Transition is one atomically-applied reconciliation step: the conditional
// session update, the order update it implies, and (on settlement) the
// fulfillment event, all in a single storage transaction.
type Transition struct {
	PaymentID     string
	OrderID       string
	From          domain.ProcessorStatus
	To            domain.ProcessorStatus
	OrderStatus   orderdomain.OrderStatus
	PaymentStatus orderdomain.PaymentStatus
	// FulfillmentEvent, when non-nil, is written to the outbox in the same
	// transaction.
	FulfillmentEvent []byte
	Traceparent      string
}

type SessionRepository interface {
	Create(ctx context.Context, s domain.PaymentSession) error
	GetByPaymentID(ctx context.Context, paymentID string) (domain.PaymentSession, error)
	// ApplyTransition performs the compare-and-swap write: it succeeds only
	// if the session status still equals t.From, and reports false when a
	// concurrent writer got there first.
	ApplyTransition(ctx context.Context, t Transition) (bool, error)
}

type OrderStore interface {
	Get(ctx context.Context, id string) (orderdomain.Order, error)
}

type Gateway interface {
	CreatePayment(ctx context.Context, o orderdomain.Order, payCurrency string) (domain.PaymentSession, error)
	PaymentStatus(ctx context.Context, paymentID string) (domain.PaymentEvent, error)
	Currencies(ctx context.Context) ([]string, error)
	EstimateRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}
