package domain

import "github.com/shopspring/decimal"

// OrderPaid is the fulfillment event published when a payment settles. The
// credential-delivery worker consumes it from the order.fulfillment topic.
type OrderPaid struct {
	OrderID       string          `json:"order_id"`
	PaymentID     string          `json:"payment_id"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	PayCurrency   string          `json:"pay_currency"`
}
