package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	orderdomain "github.com/premstore/premstore/internal/order/domain"
)

// ErrUnrecognizedStatus is returned when the processor reports a status
// outside the known vocabulary. New statuses must fail loudly instead of
// silently falling through the transition table.
var ErrUnrecognizedStatus = errors.New("unrecognized processor status")

// ProcessorStatus is the closed set of payment statuses the processor reports.
type ProcessorStatus string

const (
	StatusWaiting       ProcessorStatus = "waiting"
	StatusConfirming    ProcessorStatus = "confirming"
	StatusSending       ProcessorStatus = "sending"
	StatusConfirmed     ProcessorStatus = "confirmed"
	StatusFinished      ProcessorStatus = "finished"
	StatusFailed        ProcessorStatus = "failed"
	StatusExpired       ProcessorStatus = "expired"
	StatusRefunded      ProcessorStatus = "refunded"
	StatusPartiallyPaid ProcessorStatus = "partially_paid"
)

func ParseProcessorStatus(s string) (ProcessorStatus, error) {
	switch ProcessorStatus(s) {
	case StatusWaiting, StatusConfirming, StatusSending, StatusConfirmed,
		StatusFinished, StatusFailed, StatusExpired, StatusRefunded, StatusPartiallyPaid:
		return ProcessorStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnrecognizedStatus, s)
}

// Effect is the order-side outcome of a processor status.
type Effect struct {
	OrderStatus   orderdomain.OrderStatus
	PaymentStatus orderdomain.PaymentStatus
	// Fulfill marks a paid outcome. The engine fires credential delivery
	// only on the first transition into a paid state, so a confirmed ->
	// finished restatement does not deliver twice.
	Fulfill bool
}

// Effect maps a processor status to its order/payment effect. partially_paid
// is advisory only and never marks the order paid.
func (s ProcessorStatus) Effect() Effect {
	switch s {
	case StatusWaiting, StatusConfirming, StatusSending, StatusPartiallyPaid:
		return Effect{OrderStatus: orderdomain.OrderProcessing, PaymentStatus: orderdomain.PaymentPending}
	case StatusConfirmed, StatusFinished:
		return Effect{OrderStatus: orderdomain.OrderCompleted, PaymentStatus: orderdomain.PaymentCompleted, Fulfill: true}
	case StatusFailed, StatusExpired:
		return Effect{OrderStatus: orderdomain.OrderCancelled, PaymentStatus: orderdomain.PaymentFailed}
	case StatusRefunded:
		return Effect{OrderStatus: orderdomain.OrderRefunded, PaymentStatus: orderdomain.PaymentRefunded}
	}
	// ParseProcessorStatus guards all entry points.
	panic("unreachable processor status " + string(s))
}

// rank orders statuses for the monotonicity check: intermediates sit below
// terminals, and a stored status is never overwritten by a lower-ranked one.
// Lateral moves between intermediates (waiting <-> confirming) are allowed,
// the payment is still pending either way.
func (s ProcessorStatus) rank() int {
	if s.Terminal() {
		return 1
	}
	return 0
}

func (s ProcessorStatus) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFinished, StatusFailed, StatusExpired, StatusRefunded:
		return true
	}
	return false
}

// Paid reports whether the status settles the payment.
func (s ProcessorStatus) Paid() bool {
	return s == StatusConfirmed || s == StatusFinished
}

// CanTransitionTo applies the ordering rules from the reconciliation
// contract: duplicates are callers' business (they compare for equality
// first), backward moves are rejected, refunds are only reachable from a
// settled payment, and every other terminal is final.
func (s ProcessorStatus) CanTransitionTo(next ProcessorStatus) bool {
	if next.rank() < s.rank() {
		return false
	}
	if next == StatusRefunded {
		return s.Paid()
	}
	if s.Terminal() {
		// confirmed -> finished is the processor restating the same
		// settled outcome, not a real move.
		return s.Paid() && next.Paid()
	}
	return true
}

// PaymentSession correlates one processor payment with exactly one order.
// The mapping is immutable once created.
type PaymentSession struct {
	PaymentID     string
	OrderID       string
	PriceAmount   decimal.Decimal
	PriceCurrency string
	PayAmount     decimal.Decimal
	PayCurrency   string
	PayAddress    string
	Status        ProcessorStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PaymentEvent is the normalized shape both inputs of the reconciliation
// engine reduce to: a polled status snapshot or a verified IPN.
type PaymentEvent struct {
	PaymentID     string
	OrderID       string
	Status        ProcessorStatus
	PriceAmount   decimal.Decimal
	PriceCurrency string
	PayAmount     decimal.Decimal
	PayCurrency   string
}
