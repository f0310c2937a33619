package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/premstore/premstore/internal/order/application"
	"github.com/premstore/premstore/internal/order/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type placeOrderReq struct {
	Buyer struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"buyer"`
	Items []struct {
		ProductID string `json:"product_id"`
		VariantID string `json:"variant_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	Notes string `json:"notes"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.placeOrder)
	r.Get("/{id}", h.getOrder)
	return r
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	var req placeOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	items := make([]application.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, application.ItemRequest{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
		})
	}

	buyer := domain.Buyer{ID: req.Buyer.ID, Email: req.Buyer.Email, Name: req.Buyer.Name, Phone: req.Buyer.Phone}
	o, err := h.service.PlaceOrder(ctx, buyer, items, req.Notes)
	if err != nil {
		h.log.Warn("place order rejected", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"order_id":     o.ID,
		"status":       string(o.Status),
		"final_amount": o.FinalAmount.String(),
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.service.GetOrder(ctx, chi.URLParam(r, "id"))
	if errors.Is(err, application.ErrNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("get order failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(orderView(o))
}

func orderView(o domain.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"product_id": it.ProductID,
			"variant_id": it.VariantID,
			"duration":   it.Duration,
			"quantity":   it.Quantity,
			"unit_price": it.UnitPrice.String(),
			"line_total": it.LineTotal.String(),
		})
	}
	return map[string]any{
		"order_id":        o.ID,
		"buyer_email":     o.Buyer.Email,
		"items":           items,
		"total_amount":    o.TotalAmount.String(),
		"discount_amount": o.DiscountAmount.String(),
		"final_amount":    o.FinalAmount.String(),
		"status":          o.Status,
		"payment_status":  o.PaymentStatus,
		"payment_method":  o.PaymentMethod,
		"created_at":      o.CreatedAt,
	}
}
