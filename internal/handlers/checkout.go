package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

const (
	maxCheckoutBodySize  = 16 * 1024
	defaultVoucherLimit  = 10
	defaultVoucherWindow = time.Minute
)

// CheckoutHandlers exposes shipping quotes, voucher application, order placement and the
// browser return from the payment gateway.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	vouchers    services.VoucherService
	limiter     RateLimiter
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithVoucherRateLimiter overrides the per-account limiter on voucher application.
func WithVoucherRateLimiter(limiter RateLimiter) CheckoutOption {
	return func(h *CheckoutHandlers) {
		if limiter != nil {
			h.limiter = limiter
		}
	}
}

// WithOrderIdempotency installs the middleware guarding order placement.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) { h.idempotency = mw }
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, vouchers services.VoucherService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
		vouchers: vouchers,
		limiter:  NewMemoryRateLimiter(defaultVoucherLimit, defaultVoucherWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Use(SessionMiddleware())
	r.Post("/shipping-quote", h.shippingQuote)
	r.Post("/voucher", h.applyVoucher)
	r.Delete("/voucher", h.removeVoucher)
	r.Get("/summary", h.summary)
	r.Group(func(r chi.Router) {
		if h.idempotency != nil {
			r.Use(h.idempotency)
		}
		r.Post("/orders", h.placeOrder)
	})
}

// PaymentRoutes wires the /payments browser return endpoints.
func (h *CheckoutHandlers) PaymentRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/return/{outcome}", h.paymentReturn)
}

type shippingQuoteRequest struct {
	AddressID      string   `json:"address_id"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	DeliveryMethod string   `json:"delivery_method"`
}

type voucherRequest struct {
	Code string `json:"code"`
}

type placeOrderRequest struct {
	AddressID      string `json:"address_id"`
	DeliveryMethod string `json:"delivery_method"`
	PaymentMethod  string `json:"payment_method"`
	StoreID        string `json:"store_id"`
}

type voucherWarningPayload struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Voucher string `json:"voucher,omitempty"`
}

type checkoutSummaryPayload struct {
	Cart           cartPayload            `json:"cart"`
	Subtotal       string                 `json:"subtotal"`
	ShippingFee    string                 `json:"shipping_fee"`
	Discount       string                 `json:"discount"`
	Total          string                 `json:"total"`
	VoucherCode    string                 `json:"voucher_code,omitempty"`
	VoucherWarning *voucherWarningPayload `json:"voucher_warning,omitempty"`
}

type placeOrderResponse struct {
	Order          orderPayload           `json:"order"`
	RedirectURL    string                 `json:"redirect_url,omitempty"`
	SessionID      string                 `json:"session_id,omitempty"`
	VoucherWarning *voucherWarningPayload `json:"voucher_warning,omitempty"`
}

func buildVoucherWarning(rejection *services.VoucherRejection) *voucherWarningPayload {
	if rejection == nil {
		return nil
	}
	return &voucherWarningPayload{Code: rejection.Code, Reason: rejection.Reason, Voucher: rejection.Voucher}
}

func (h *CheckoutHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.checkout == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *CheckoutHandlers) shippingQuote(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req shippingQuoteRequest
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	fee, err := h.checkout.QuoteShipping(r.Context(), services.ShippingQuoteCommand{
		AccountID:      identity.AccountID,
		AddressID:      strings.TrimSpace(req.AddressID),
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		DeliveryMethod: req.DeliveryMethod,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"delivery_method": req.DeliveryMethod,
		"shipping_fee":    formatMoney(fee),
	})
}

func (h *CheckoutHandlers) applyVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(ctx, "voucher:"+identity.AccountID) {
		w.Header().Set("Retry-After", strconv.Itoa(int(defaultVoucherWindow.Seconds())))
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many voucher attempts, try again later", http.StatusTooManyRequests))
		return
	}
	var req voucherRequest
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	reservation, err := h.vouchers.Apply(ctx, services.ApplyVoucherCommand{
		Owner:     cartOwner(r),
		AccountID: identity.AccountID,
		Code:      req.Code,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"code":       reservation.Code,
		"discount":   formatMoney(reservation.Discount),
		"subtotal":   formatMoney(reservation.Subtotal),
		"expires_at": formatTime(reservation.ExpiresAt),
	})
}

func (h *CheckoutHandlers) removeVoucher(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.vouchers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("voucher_service_unavailable", "voucher service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if _, ok := requireIdentity(w, r); !ok {
		return
	}
	if err := h.vouchers.Remove(ctx, cartOwner(r)); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandlers) summary(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	summary, err := h.checkout.Summary(r.Context(), services.CheckoutSummaryCommand{
		Owner:          cartOwner(r),
		AccountID:      identity.AccountID,
		AddressID:      strings.TrimSpace(query.Get("address_id")),
		DeliveryMethod: query.Get("delivery_method"),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutSummaryPayload{
		Cart:           buildCartPayload(summary.Cart),
		Subtotal:       formatMoney(summary.Breakdown.Subtotal),
		ShippingFee:    formatMoney(summary.Breakdown.Shipping),
		Discount:       formatMoney(summary.Breakdown.Discount),
		Total:          formatMoney(summary.Breakdown.Total),
		VoucherCode:    summary.VoucherCode,
		VoucherWarning: buildVoucherWarning(summary.VoucherWarning),
	})
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decodeJSONBody(w, r, maxCheckoutBodySize, &req) {
		return
	}
	result, err := h.checkout.PlaceOrder(r.Context(), services.PlaceOrderCommand{
		AccountID:      identity.AccountID,
		Email:          identity.Email,
		Owner:          cartOwner(r),
		AddressID:      strings.TrimSpace(req.AddressID),
		DeliveryMethod: req.DeliveryMethod,
		PaymentMethod:  req.PaymentMethod,
		StoreID:        strings.TrimSpace(req.StoreID),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, placeOrderResponse{
		Order:          buildOrderPayload(result.Order),
		RedirectURL:    result.RedirectURL,
		SessionID:      result.SessionID,
		VoucherWarning: buildVoucherWarning(result.VoucherWarning),
	})
}

func (h *CheckoutHandlers) paymentReturn(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.checkout.CompletePayment(r.Context(), services.PaymentOutcomeCommand{
		OrderID:   r.URL.Query().Get("orderId"),
		Outcome:   services.PaymentOutcome(chi.URLParam(r, "outcome")),
		AccountID: identity.AccountID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}
