// Package memory holds an in-memory order store used by unit tests and local
// development. It implements the same port as the postgres repository.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/premstore/premstore/internal/order/application"
	"github.com/premstore/premstore/internal/order/domain"
)

type Store struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewStore() *Store {
	return &Store{orders: make(map[string]domain.Order)}
}

func (s *Store) Save(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, application.ErrNotFound
	}
	return o, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, payment domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return application.ErrNotFound
	}
	o.Status = status
	o.PaymentStatus = payment
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}
