package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/platform/requestctx"
	"github.com/tindahan/api/internal/services"
)

const maxWebhookBodySize = 32 * 1024

// WebhookHandlers receives server-to-server payment callbacks. Signature verification is
// applied by the /webhooks group middleware.
type WebhookHandlers struct {
	checkout services.CheckoutService
}

func NewWebhookHandlers(checkout services.CheckoutService) *WebhookHandlers {
	return &WebhookHandlers{checkout: checkout}
}

// Routes wires the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	r.Post("/payments/{outcome}", h.paymentOutcome)
}

type paymentWebhookRequest struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
}

func (h *WebhookHandlers) paymentOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	var req paymentWebhookRequest
	if !decodeJSONBody(w, r, maxWebhookBodySize, &req) {
		return
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(r.URL.Query().Get("orderId"))
	}
	outcome := chi.URLParam(r, "outcome")

	order, err := h.checkout.CompletePayment(ctx, services.PaymentOutcomeCommand{
		OrderID: orderID,
		Outcome: services.PaymentOutcome(outcome),
	})
	if err != nil {
		requestctx.Logger(ctx).Warn("payment webhook rejected",
			zap.String("orderId", orderID),
			zap.String("outcome", outcome),
			zap.String("transactionId", req.TransactionID),
			zap.Error(err),
		)
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order_id":        order.ID,
		"payment_status":  string(order.PaymentStatus),
		"shipping_status": string(order.ShippingStatus),
	})
}
