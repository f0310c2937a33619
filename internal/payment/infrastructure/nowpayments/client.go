// Package nowpayments wraps the NOWPayments REST API: currency listing,
// exchange estimates, payment creation and status polling, plus IPN
// signature verification.
package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUpstreamUnavailable covers network failures and 5xx responses.
	// Transient: callers may retry.
	ErrUpstreamUnavailable = errors.New("payment processor unavailable")
	// ErrInvalidCurrencyPair is the processor rejecting an estimate request.
	// Non-retryable.
	ErrInvalidCurrencyPair = errors.New("invalid currency pair")
	// ErrPaymentNotFound means the processor does not know the payment id.
	ErrPaymentNotFound = errors.New("payment not found")
)

// APIError is a 4xx rejection from the processor, carrying the raw error body
// for the support trail.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("processor rejected request (status %d): %s", e.Status, e.Body)
}

const defaultTimeout = 10 * time.Second

type Client struct {
	log     *slog.Logger
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(log *slog.Logger, baseURL, apiKey string) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type CreatePaymentRequest struct {
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayCurrency      string          `json:"pay_currency"`
	OrderID          string          `json:"order_id"`
	OrderDescription string          `json:"order_description"`
	IPNCallbackURL   string          `json:"ipn_callback_url"`
	SuccessURL       string          `json:"success_url"`
	CancelURL        string          `json:"cancel_url"`
}

type Payment struct {
	PaymentID     json.Number     `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	PayAddress    string          `json:"pay_address"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	PayCurrency   string          `json:"pay_currency"`
	OrderID       string          `json:"order_id"`
}

// Currencies returns the settlement currencies the processor supports.
func (c *Client) Currencies(ctx context.Context) ([]string, error) {
	var out struct {
		Currencies []string `json:"currencies"`
	}
	if err := c.get(ctx, "/currencies", &out); err != nil {
		return nil, err
	}
	return out.Currencies, nil
}

// EstimateRate returns the settlement amount for one unit of from in to.
func (c *Client) EstimateRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	var out struct {
		EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	}
	err := c.get(ctx, fmt.Sprintf("/exchange-amount/%s/%s", from, to), &out)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return decimal.Zero, fmt.Errorf("%w: %s/%s: %w", ErrInvalidCurrencyPair, from, to, err)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return out.EstimatedAmount, nil
}

// CreatePayment opens a payment on the processor. The order id travels in the
// request and comes back in every IPN, which is what correlates processor
// notifications with local orders.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error) {
	if req.OrderID == "" {
		return Payment{}, errors.New("order id is required")
	}
	if !req.PriceAmount.IsPositive() {
		return Payment{}, fmt.Errorf("price amount must be positive, got %s", req.PriceAmount)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Payment{}, err
	}

	var p Payment
	if err := c.do(ctx, http.MethodPost, "/payment", bytes.NewReader(body), &p); err != nil {
		return Payment{}, err
	}
	return p, nil
}

// PaymentStatus fetches the processor's current view of a payment.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (Payment, error) {
	var p Payment
	err := c.get(ctx, "/payment/"+paymentID, &p)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusNotFound) {
		return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	if err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		c.log.Warn("processor 5xx", "method", method, "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding processor response: %w", err)
	}
	return nil
}
