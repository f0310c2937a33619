package nowpayments

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	orderdomain "github.com/premstore/premstore/internal/order/domain"
	"github.com/premstore/premstore/internal/payment/domain"
)

// Gateway adapts Client to the reconciliation engine's port, normalizing
// processor responses into domain sessions and events.
type Gateway struct {
	client       *Client
	fiatCurrency string
	ipnCallback  string
	successURL   string
	cancelURL    string
}

// NewGateway builds callback URLs from the backend and frontend base URLs:
// IPNs land on the backend, the buyer is redirected to the frontend.
func NewGateway(client *Client, fiatCurrency, backendURL, frontendURL string) *Gateway {
	return &Gateway{
		client:       client,
		fiatCurrency: fiatCurrency,
		ipnCallback:  backendURL + "/payments/nowpayments/ipn",
		successURL:   frontendURL + "/payment/success",
		cancelURL:    frontendURL + "/payment/cancel",
	}
}

func (g *Gateway) CreatePayment(ctx context.Context, o orderdomain.Order, payCurrency string) (domain.PaymentSession, error) {
	p, err := g.client.CreatePayment(ctx, CreatePaymentRequest{
		PriceAmount:      o.FinalAmount,
		PriceCurrency:    g.fiatCurrency,
		PayCurrency:      payCurrency,
		OrderID:          o.ID,
		OrderDescription: fmt.Sprintf("order %s (%d items)", o.ID, len(o.Items)),
		IPNCallbackURL:   g.ipnCallback,
		SuccessURL:       g.successURL,
		CancelURL:        g.cancelURL,
	})
	if err != nil {
		return domain.PaymentSession{}, err
	}

	status, err := domain.ParseProcessorStatus(p.PaymentStatus)
	if err != nil {
		return domain.PaymentSession{}, err
	}

	now := time.Now().UTC()
	return domain.PaymentSession{
		PaymentID:     p.PaymentID.String(),
		OrderID:       o.ID,
		PriceAmount:   p.PriceAmount,
		PriceCurrency: p.PriceCurrency,
		PayAmount:     p.PayAmount,
		PayCurrency:   p.PayCurrency,
		PayAddress:    p.PayAddress,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (g *Gateway) PaymentStatus(ctx context.Context, paymentID string) (domain.PaymentEvent, error) {
	p, err := g.client.PaymentStatus(ctx, paymentID)
	if err != nil {
		return domain.PaymentEvent{}, err
	}

	status, err := domain.ParseProcessorStatus(p.PaymentStatus)
	if err != nil {
		return domain.PaymentEvent{}, err
	}

	return domain.PaymentEvent{
		PaymentID:     p.PaymentID.String(),
		OrderID:       p.OrderID,
		Status:        status,
		PriceAmount:   p.PriceAmount,
		PriceCurrency: p.PriceCurrency,
		PayAmount:     p.PayAmount,
		PayCurrency:   p.PayCurrency,
	}, nil
}

func (g *Gateway) Currencies(ctx context.Context) ([]string, error) {
	return g.client.Currencies(ctx)
}

func (g *Gateway) EstimateRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return g.client.EstimateRate(ctx, from, to)
}
