// Package memory holds an in-memory payment session store for unit tests.
// Fulfillment events are collected instead of published so tests can assert
// exactly-once delivery.
package memory

import (
	"context"
	"sync"
	"time"

	orderdomain "github.com/premstore/premstore/internal/order/domain"
	"github.com/premstore/premstore/internal/payment/application"
	"github.com/premstore/premstore/internal/payment/domain"
)

type orderUpdater interface {
	UpdateStatus(ctx context.Context, id string, status orderdomain.OrderStatus, payment orderdomain.PaymentStatus) error
}

type Store struct {
	mu           sync.Mutex
	sessions     map[string]domain.PaymentSession
	orders       orderUpdater
	fulfillments [][]byte
}

func NewStore(orders orderUpdater) *Store {
	return &Store{
		sessions: make(map[string]domain.PaymentSession),
		orders:   orders,
	}
}

func (s *Store) Create(ctx context.Context, sess domain.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.PaymentID] = sess
	return nil
}

func (s *Store) GetByPaymentID(ctx context.Context, paymentID string) (domain.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[paymentID]
	if !ok {
		return domain.PaymentSession{}, application.ErrUnknownPayment
	}
	return sess, nil
}

func (s *Store) ApplyTransition(ctx context.Context, t application.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[t.PaymentID]
	if !ok || sess.Status != t.From {
		return false, nil
	}

	sess.Status = t.To
	sess.UpdatedAt = time.Now().UTC()
	s.sessions[t.PaymentID] = sess

	if err := s.orders.UpdateStatus(ctx, t.OrderID, t.OrderStatus, t.PaymentStatus); err != nil {
		return false, err
	}
	if t.FulfillmentEvent != nil {
		s.fulfillments = append(s.fulfillments, t.FulfillmentEvent)
	}
	return true, nil
}

// Fulfillments returns the fulfillment events recorded so far.
func (s *Store) Fulfillments() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.fulfillments))
	copy(out, s.fulfillments)
	return out
}
