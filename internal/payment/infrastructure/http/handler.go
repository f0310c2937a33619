package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/premstore/premstore/internal/payment/application"
	"github.com/premstore/premstore/internal/payment/domain"
	"github.com/premstore/premstore/internal/payment/infrastructure/nowpayments"
)

const maxIPNBody = 64 << 10

// Verifier proves an IPN body originated from the processor.
type Verifier interface {
	Verify(payload []byte, signature string) bool
}

// Deduper short-circuits redelivered IPNs before they reach the engine.
// Optional: a nil Deduper disables the fast path, the engine stays correct
// without it.
type Deduper interface {
	Key(paymentID, status string) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Handler struct {
	log       *slog.Logger
	service   *application.Service
	verifier  Verifier
	dedup     Deduper
	publicKey string
	tracer    trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, verifier Verifier, dedup Deduper, publicKey string) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		verifier:  verifier,
		dedup:     dedup,
		publicKey: publicKey,
		tracer:    otel.Tracer("payment-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.createPayment)
	r.Get("/config", h.config)
	r.Get("/currencies", h.currencies)
	r.Get("/estimate", h.estimate)
	r.Get("/{id}", h.paymentStatus)
	r.Post("/nowpayments/ipn", h.ipn)
	return r
}

type createPaymentReq struct {
	OrderID     string `json:"order_id"`
	PayCurrency string `json:"pay_currency"`
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePayment")
	defer span.End()

	var req createPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.OrderID == "" || req.PayCurrency == "" {
		http.Error(w, "order_id and pay_currency are required", http.StatusBadRequest)
		return
	}

	sess, err := h.service.CreatePayment(ctx, req.OrderID, req.PayCurrency)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"payment_id":     sess.PaymentID,
		"order_id":       sess.OrderID,
		"pay_address":    sess.PayAddress,
		"pay_amount":     sess.PayAmount.String(),
		"pay_currency":   sess.PayCurrency,
		"price_amount":   sess.PriceAmount.String(),
		"price_currency": sess.PriceCurrency,
		"status":         sess.Status,
	})
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentStatus")
	defer span.End()

	sess, err := h.service.PollStatus(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id":   sess.PaymentID,
		"order_id":     sess.OrderID,
		"status":       sess.Status,
		"pay_address":  sess.PayAddress,
		"pay_amount":   sess.PayAmount.String(),
		"pay_currency": sess.PayCurrency,
	})
}

// ipnPayload mirrors the processor's webhook body. payment_id arrives as a
// JSON number.
type ipnPayload struct {
	PaymentID     json.Number     `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	OrderID       string          `json:"order_id"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	PayCurrency   string          `json:"pay_currency"`
}

// ipn handles processor webhooks. Unverified or malformed requests are
// rejected so the processor's retry and alerting fire; verified but stale,
// duplicate or unknown events are acknowledged with 200 to stop retry storms.
func (h *Handler) ipn(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "IPN")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIPNBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	sig := r.Header.Get(nowpayments.SignatureHeader)
	if !h.verifier.Verify(body, sig) {
		h.log.Warn("ipn rejected", "err", nowpayments.ErrSignatureInvalid,
			"remote_addr", r.RemoteAddr, "has_signature", sig != "")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload ipnPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	status, err := domain.ParseProcessorStatus(payload.PaymentStatus)
	if err != nil {
		h.log.Error("ipn with unrecognized status", "payment_id", payload.PaymentID, "status", payload.PaymentStatus)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	paymentID := payload.PaymentID.String()
	var dedupKey string
	if h.dedup != nil {
		dedupKey = h.dedup.Key(paymentID, string(status))
		seen, err := h.dedup.Seen(ctx, dedupKey)
		if err != nil {
			// dedup is best effort; the engine handles duplicates anyway
			h.log.Error("ipn dedup check failed", "err", err)
		} else if seen {
			h.log.Debug("ipn redelivery skipped", "payment_id", paymentID, "status", status)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
	}

	_, err = h.service.Apply(ctx, domain.PaymentEvent{
		PaymentID:     paymentID,
		OrderID:       payload.OrderID,
		Status:        status,
		PriceAmount:   payload.PriceAmount,
		PriceCurrency: payload.PriceCurrency,
		PayAmount:     payload.PayAmount,
		PayCurrency:   payload.PayCurrency,
	})
	switch {
	case errors.Is(err, application.ErrUnknownPayment):
		// acknowledged: retrying will not make this payment known
		h.log.Warn("ipn for unknown payment acknowledged", "payment_id", paymentID)
	case err != nil:
		h.log.Error("ipn reconciliation failed", "payment_id", paymentID, "err", err)
		// release the dedup claim, otherwise the processor's retry would be
		// acknowledged without ever being applied
		if h.dedup != nil {
			if ferr := h.dedup.Forget(ctx, dedupKey); ferr != nil {
				h.log.Error("ipn dedup release failed", "key", dedupKey, "err", ferr)
			}
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// config exposes the values the storefront needs to render the payment
// widget. The public key is not a secret.
func (h *Handler) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

func (h *Handler) currencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.service.Currencies(r.Context())
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currencies": currencies})
}

func (h *Handler) estimate(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	rate, err := h.service.EstimateRate(r.Context(), from, to)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"from": from, "to": to, "estimated_amount": rate.String()})
}

func (h *Handler) writePaymentError(w http.ResponseWriter, err error) {
	var apiErr *nowpayments.APIError
	switch {
	case errors.Is(err, application.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	case errors.Is(err, application.ErrOrderNotPayable):
		http.Error(w, "order is not payable", http.StatusConflict)
	case errors.Is(err, application.ErrUnknownPayment),
		errors.Is(err, nowpayments.ErrPaymentNotFound):
		http.Error(w, "payment not found", http.StatusNotFound)
	case errors.Is(err, nowpayments.ErrInvalidCurrencyPair):
		http.Error(w, "unsupported currency, try a different one", http.StatusUnprocessableEntity)
	case errors.As(err, &apiErr):
		h.log.Warn("processor rejected payment", "status", apiErr.Status, "body", apiErr.Body)
		http.Error(w, "payment could not be created, try a different currency or contact support", http.StatusUnprocessableEntity)
	case errors.Is(err, nowpayments.ErrUpstreamUnavailable):
		http.Error(w, "payment processor unavailable, try again shortly", http.StatusBadGateway)
	default:
		h.log.Error("payment request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
