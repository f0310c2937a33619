package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store suppresses duplicate IPN deliveries. The payment processor retries
// webhooks aggressively, so the first thing the webhook handler does after
// signature verification is a SetNX on the (payment, status) pair. This is a
// fast path only - the reconciliation engine remains the authority on
// duplicates and ordering.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(paymentID, status string) string {
	return fmt.Sprintf("ipn:%s:%s", paymentID, status)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}

	return !ok, nil
}

// Forget releases a key claimed by Seen. Called when handling the delivery
// failed after the claim, so the processor's retry is not short-circuited.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
