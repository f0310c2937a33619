package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	orderapp "github.com/premstore/premstore/internal/order/application"
	"github.com/premstore/premstore/internal/payment/domain"
	"github.com/premstore/premstore/pkg/keylock"
	"github.com/premstore/premstore/pkg/tracing"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotPayable means the order already left pending/pending.
	ErrOrderNotPayable = errors.New("order is not payable")
	// ErrUnknownPayment means no local session correlates the processor
	// payment id. Logged and discarded, never fabricates an order.
	ErrUnknownPayment = errors.New("unknown payment")
)

// Service is the payment reconciliation engine. It owns every order/payment
// status write: payment events, whether polled or pushed over IPN, are
// normalized to domain.PaymentEvent and funneled through Apply.
type Service struct {
	log      *slog.Logger
	sessions SessionRepository
	orders   OrderStore
	gateway  Gateway
	locks    *keylock.KeyedMutex
}

func NewService(log *slog.Logger, sessions SessionRepository, orders OrderStore, gateway Gateway) *Service {
	return &Service{
		log:      log,
		sessions: sessions,
		orders:   orders,
		gateway:  gateway,
		locks:    keylock.New(),
	}
}

// CreatePayment opens a payment session on the processor for a still-payable
// order and persists the session keyed by the processor payment id.
func (s *Service) CreatePayment(ctx context.Context, orderID, payCurrency string) (domain.PaymentSession, error) {
	o, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, orderapp.ErrNotFound) {
		return domain.PaymentSession{}, ErrOrderNotFound
	}
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if !o.Payable() {
		return domain.PaymentSession{}, ErrOrderNotPayable
	}

	sess, err := s.gateway.CreatePayment(ctx, o, payCurrency)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return domain.PaymentSession{}, err
	}

	s.log.Info("payment session created",
		"order_id", orderID, "payment_id", sess.PaymentID, "pay_currency", payCurrency)
	return sess, nil
}

// PollStatus fetches the processor's view of a payment and reconciles it.
func (s *Service) PollStatus(ctx context.Context, paymentID string) (domain.PaymentSession, error) {
	ev, err := s.gateway.PaymentStatus(ctx, paymentID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	return s.Apply(ctx, ev)
}

// Apply reconciles one payment event against the stored session, idempotently
// and monotonically. Duplicate and stale events are discarded without error;
// the returned session always reflects the state after the call.
//
// The read-compare-write runs under a per-payment-id lock, and the store
// write is additionally conditional on the expected current status, so two
// concurrent deliveries of the same event result in exactly one write.
func (s *Service) Apply(ctx context.Context, ev domain.PaymentEvent) (domain.PaymentSession, error) {
	s.locks.Lock(ev.PaymentID)
	defer s.locks.Unlock(ev.PaymentID)

	sess, err := s.sessions.GetByPaymentID(ctx, ev.PaymentID)
	if err != nil {
		if errors.Is(err, ErrUnknownPayment) {
			s.log.Warn("event for unknown payment discarded", "payment_id", ev.PaymentID, "status", ev.Status)
		}
		return domain.PaymentSession{}, err
	}

	if ev.Status == sess.Status {
		s.log.Debug("duplicate event skipped", "payment_id", ev.PaymentID, "status", ev.Status)
		return sess, nil
	}
	if !sess.Status.CanTransitionTo(ev.Status) {
		s.log.Info("stale event discarded",
			"payment_id", ev.PaymentID, "current", sess.Status, "reported", ev.Status)
		return sess, nil
	}

	eff := ev.Status.Effect()
	// confirmed -> finished is the processor restating an already settled
	// payment; the status advances but credential delivery already fired.
	fulfill := eff.Fulfill && !sess.Status.Paid()
	t := Transition{
		PaymentID:     ev.PaymentID,
		OrderID:       sess.OrderID,
		From:          sess.Status,
		To:            ev.Status,
		OrderStatus:   eff.OrderStatus,
		PaymentStatus: eff.PaymentStatus,
		Traceparent:   tracing.Traceparent(ctx),
	}
	if fulfill {
		payload, err := json.Marshal(domain.OrderPaid{
			OrderID:       sess.OrderID,
			PaymentID:     ev.PaymentID,
			PriceAmount:   ev.PriceAmount,
			PriceCurrency: ev.PriceCurrency,
			PayAmount:     ev.PayAmount,
			PayCurrency:   ev.PayCurrency,
		})
		if err != nil {
			return domain.PaymentSession{}, err
		}
		t.FulfillmentEvent = payload
	}

	applied, err := s.sessions.ApplyTransition(ctx, t)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if !applied {
		// a concurrent writer moved the session first; re-read and report
		// its outcome
		s.log.Info("transition lost to concurrent writer", "payment_id", ev.PaymentID, "reported", ev.Status)
		return s.sessions.GetByPaymentID(ctx, ev.PaymentID)
	}

	s.log.Info("payment reconciled",
		"payment_id", ev.PaymentID, "order_id", sess.OrderID,
		"from", sess.Status, "to", ev.Status, "fulfill", fulfill)

	sess.Status = ev.Status
	return sess, nil
}

// Currencies passes through the processor's supported settlement currencies.
func (s *Service) Currencies(ctx context.Context) ([]string, error) {
	return s.gateway.Currencies(ctx)
}

// EstimateRate passes through the processor's exchange estimate.
func (s *Service) EstimateRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return s.gateway.EstimateRate(ctx, from, to)
}
