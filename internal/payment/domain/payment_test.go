package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "github.com/premstore/premstore/internal/order/domain"
)

func TestParseProcessorStatus(t *testing.T) {
	for _, s := range []string{"waiting", "confirming", "sending", "confirmed",
		"finished", "failed", "expired", "refunded", "partially_paid"} {
		got, err := ParseProcessorStatus(s)
		require.NoError(t, err)
		assert.Equal(t, ProcessorStatus(s), got)
	}

	_, err := ParseProcessorStatus("settled")
	assert.ErrorIs(t, err, ErrUnrecognizedStatus)
	_, err = ParseProcessorStatus("")
	assert.ErrorIs(t, err, ErrUnrecognizedStatus)
}

func TestEffect(t *testing.T) {
	tests := []struct {
		status  ProcessorStatus
		order   orderdomain.OrderStatus
		payment orderdomain.PaymentStatus
		fulfill bool
	}{
		{StatusWaiting, orderdomain.OrderProcessing, orderdomain.PaymentPending, false},
		{StatusConfirming, orderdomain.OrderProcessing, orderdomain.PaymentPending, false},
		{StatusSending, orderdomain.OrderProcessing, orderdomain.PaymentPending, false},
		{StatusPartiallyPaid, orderdomain.OrderProcessing, orderdomain.PaymentPending, false},
		{StatusConfirmed, orderdomain.OrderCompleted, orderdomain.PaymentCompleted, true},
		{StatusFinished, orderdomain.OrderCompleted, orderdomain.PaymentCompleted, true},
		{StatusFailed, orderdomain.OrderCancelled, orderdomain.PaymentFailed, false},
		{StatusExpired, orderdomain.OrderCancelled, orderdomain.PaymentFailed, false},
		{StatusRefunded, orderdomain.OrderRefunded, orderdomain.PaymentRefunded, false},
	}
	for _, tt := range tests {
		eff := tt.status.Effect()
		assert.Equal(t, tt.order, eff.OrderStatus, "%s", tt.status)
		assert.Equal(t, tt.payment, eff.PaymentStatus, "%s", tt.status)
		assert.Equal(t, tt.fulfill, eff.Fulfill, "%s", tt.status)
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    ProcessorStatus
		to      ProcessorStatus
		allowed bool
	}{
		// forward
		{StatusWaiting, StatusConfirming, true},
		{StatusConfirming, StatusFinished, true},
		{StatusWaiting, StatusFailed, true},
		{StatusPartiallyPaid, StatusFinished, true},
		{StatusPartiallyPaid, StatusExpired, true},
		// lateral intermediates are re-entrant
		{StatusConfirming, StatusWaiting, true},
		{StatusSending, StatusPartiallyPaid, true},
		// terminal never downgrades
		{StatusFinished, StatusConfirming, false},
		{StatusFinished, StatusWaiting, false},
		{StatusFailed, StatusWaiting, false},
		{StatusExpired, StatusFinished, false},
		// refund only from a settled payment
		{StatusFinished, StatusRefunded, true},
		{StatusConfirmed, StatusRefunded, true},
		{StatusWaiting, StatusRefunded, false},
		{StatusFailed, StatusRefunded, false},
		{StatusRefunded, StatusFinished, false},
		// the processor restating settlement
		{StatusConfirmed, StatusFinished, true},
		{StatusFinished, StatusConfirmed, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
