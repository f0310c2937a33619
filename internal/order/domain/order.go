package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCompleted, OrderCancelled, OrderRefunded},
	OrderProcessing: {OrderCompleted, OrderCancelled, OrderRefunded},
	// completed is terminal for the order flow except refunds
	OrderCompleted: {OrderRefunded},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Buyer struct {
	ID    string
	Email string
	Name  string
	Phone string
}

type OrderItem struct {
	ProductID string
	VariantID string
	Duration  string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

type Order struct {
	ID             string
	Buyer          Buyer
	Items          []OrderItem
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	PaymentMethod  string
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewOrder computes line totals and aggregates from the items so the
// final_amount = total_amount - discount_amount invariant holds by
// construction.
func NewOrder(id string, buyer Buyer, items []OrderItem, discount decimal.Decimal, notes string) Order {
	total := decimal.Zero
	for i := range items {
		items[i].LineTotal = items[i].UnitPrice.Mul(decimal.NewFromInt(int64(items[i].Quantity)))
		total = total.Add(items[i].LineTotal)
	}
	now := time.Now().UTC()
	return Order{
		ID:             id,
		Buyer:          buyer,
		Items:          items,
		TotalAmount:    total,
		DiscountAmount: discount,
		FinalAmount:    total.Sub(discount),
		Status:         OrderPending,
		PaymentStatus:  PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Payable reports whether a payment session may still be opened for the order.
func (o Order) Payable() bool {
	return o.Status == OrderPending && o.PaymentStatus == PaymentPending
}
