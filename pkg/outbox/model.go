package outbox

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one row of the transactional outbox. Fulfillment events are
// written in the same transaction as the order/payment status update that
// produced them, then published to Kafka by the relay. Delivery is
// at-least-once: failed dispatches requeue as pending, expired leases are
// reclaimed, and only events that keep failing are parked as failed.
// Consumers dedupe on (aggregate_id, type).
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}
