package nowpayments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/premstore/premstore/pkg/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(logging.New(), srv.URL, "test-api-key")
}

func TestCurrencies_AttachesAPIKey(t *testing.T) {
	var gotKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		assert.Equal(t, "/currencies", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"currencies": []string{"btc", "eth", "usdttrc20"}})
	})

	currencies, err := c.Currencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-api-key", gotKey)
	assert.Equal(t, []string{"btc", "eth", "usdttrc20"}, currencies)
}

func TestEstimateRate_InvalidPairIs4xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Currency not found"}`))
	})

	_, err := c.EstimateRate(context.Background(), "usd", "nope")
	assert.ErrorIs(t, err, ErrInvalidCurrencyPair)
	assert.NotErrorIs(t, err, ErrUpstreamUnavailable)

	// the processor's error body stays on the chain for the support trail
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "Currency not found")
}

func TestEstimateRate_5xxIsUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.EstimateRate(context.Background(), "usd", "btc")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestCreatePayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payment", r.URL.Path)

		var req CreatePaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ord-1", req.OrderID)
		assert.Equal(t, "btc", req.PayCurrency)
		assert.True(t, decimal.NewFromInt(500).Equal(req.PriceAmount))
		assert.Equal(t, "https://api.example.com/payments/nowpayments/ipn", req.IPNCallbackURL)

		_ = json.NewEncoder(w).Encode(Payment{
			PaymentID:     "4945313932",
			PaymentStatus: "waiting",
			PayAddress:    "bc1qtestaddr",
			PriceAmount:   req.PriceAmount,
			PriceCurrency: req.PriceCurrency,
			PayAmount:     decimal.RequireFromString("0.01234567"),
			PayCurrency:   req.PayCurrency,
			OrderID:       req.OrderID,
		})
	})

	p, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		PriceAmount:    decimal.NewFromInt(500),
		PriceCurrency:  "usd",
		PayCurrency:    "btc",
		OrderID:        "ord-1",
		IPNCallbackURL: "https://api.example.com/payments/nowpayments/ipn",
	})
	require.NoError(t, err)
	assert.Equal(t, "4945313932", p.PaymentID.String())
	assert.Equal(t, "waiting", p.PaymentStatus)
	assert.Equal(t, "bc1qtestaddr", p.PayAddress)
}

func TestCreatePayment_Validation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not reach the processor")
	})

	_, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		PriceAmount: decimal.NewFromInt(500), PriceCurrency: "usd", PayCurrency: "btc",
	})
	assert.Error(t, err)

	_, err = c.CreatePayment(context.Background(), CreatePaymentRequest{
		PriceAmount: decimal.Zero, PriceCurrency: "usd", PayCurrency: "btc", OrderID: "ord-1",
	})
	assert.Error(t, err)
}

func TestCreatePayment_ProcessorRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Invalid api key"}`))
	})

	_, err := c.CreatePayment(context.Background(), CreatePaymentRequest{
		PriceAmount: decimal.NewFromInt(500), PriceCurrency: "usd", PayCurrency: "btc", OrderID: "ord-1",
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Contains(t, apiErr.Body, "Invalid api key")
}

func TestPaymentStatus_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Payment not found"}`))
	})

	_, err := c.PaymentStatus(context.Background(), "unknown-id")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/4945313932", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Payment{
			PaymentID:     "4945313932",
			PaymentStatus: "confirming",
			OrderID:       "ord-1",
		})
	})

	p, err := c.PaymentStatus(context.Background(), "4945313932")
	require.NoError(t, err)
	assert.Equal(t, "confirming", p.PaymentStatus)
	assert.Equal(t, "ord-1", p.OrderID)
}
