package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

// OrderHandlers exposes the caller's orders.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	reviews services.ReviewService
}

// NewOrderHandlers constructs order handlers. reviews may be nil.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, reviews services.ReviewService) *OrderHandlers {
	return &OrderHandlers{authn: authn, orders: orders, reviews: reviews}
}

// Routes wires the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Get("/{orderID}/reviewable", h.reviewable)
}

type orderItemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
}

type orderHistoryPayload struct {
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type orderPickupPayload struct {
	StoreID    string `json:"store_id"`
	StoreName  string `json:"store_name,omitempty"`
	AssignedAt string `json:"assigned_at,omitempty"`
}

type orderPayload struct {
	ID                   string                `json:"id"`
	AccountID            string                `json:"account_id"`
	AddressID            string                `json:"address_id,omitempty"`
	PaymentStatus        string                `json:"payment_status"`
	ShippingStatus       string                `json:"shipping_status"`
	DeliveryMethod       string                `json:"delivery_method"`
	PaymentMethod        string                `json:"payment_method"`
	Subtotal             string                `json:"subtotal"`
	ShippingFee          string                `json:"shipping_fee"`
	DiscountAmount       string                `json:"discount_amount"`
	TotalPrice           string                `json:"total_price"`
	VoucherCode          string                `json:"voucher_code,omitempty"`
	PaymentTransactionID string                `json:"payment_transaction_id,omitempty"`
	AwaitingPayment      bool                  `json:"awaiting_payment"`
	CreatedAt            string                `json:"created_at"`
	UpdatedAt            string                `json:"updated_at,omitempty"`
	Items                []orderItemPayload    `json:"items"`
	History              []orderHistoryPayload `json:"history,omitempty"`
	Pickup               *orderPickupPayload   `json:"pickup,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                   order.ID,
		AccountID:            order.AccountID,
		AddressID:            order.AddressID,
		PaymentStatus:        string(order.PaymentStatus),
		ShippingStatus:       string(order.ShippingStatus),
		DeliveryMethod:       order.DeliveryMethod,
		PaymentMethod:        order.PaymentMethod,
		Subtotal:             formatMoney(order.Subtotal),
		ShippingFee:          formatMoney(order.ShippingFee),
		DiscountAmount:       formatMoney(order.DiscountAmount),
		TotalPrice:           formatMoney(order.TotalPrice),
		VoucherCode:          order.VoucherCode,
		PaymentTransactionID: order.PaymentTransactionID,
		AwaitingPayment:      order.AwaitingPayment,
		CreatedAt:            formatTime(order.CreatedAt),
		UpdatedAt:            formatTime(order.UpdatedAt),
		Items:                make([]orderItemPayload, 0, len(order.Lines)),
	}
	for _, line := range order.Lines {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:          line.ID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   formatMoney(line.UnitPrice),
			LineTotal:   formatMoney(line.LineTotal()),
		})
	}
	if len(order.History) > 0 {
		history := append([]domain.OrderHistoryEntry(nil), order.History...)
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].CreatedAt.After(history[j].CreatedAt)
		})
		payload.History = make([]orderHistoryPayload, 0, len(history))
		for _, entry := range history {
			payload.History = append(payload.History, orderHistoryPayload{
				Status:    entry.Status,
				Note:      entry.Note,
				CreatedAt: formatTime(entry.CreatedAt),
			})
		}
	}
	if order.Pickup != nil {
		payload.Pickup = &orderPickupPayload{
			StoreID:    order.Pickup.StoreID,
			StoreName:  order.Pickup.StoreName,
			AssignedAt: formatTime(order.Pickup.AssignedAt),
		}
	}
	return payload
}

func buildOrderList(page domain.Page[services.Order]) orderListResponse {
	resp := orderListResponse{Items: make([]orderPayload, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, buildOrderPayload(order))
	}
	return resp
}

func (h *OrderHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	page, err := h.orders.ListOrders(r.Context(), services.OrderListFilter{
		AccountID:  identity.AccountID,
		Pagination: pager,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), services.OrderQuery{
		OrderID:   chi.URLParam(r, "orderID"),
		AccountID: identity.AccountID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Cancel(r.Context(), services.CancelCommand{
		OrderID:   chi.URLParam(r, "orderID"),
		AccountID: identity.AccountID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type reviewableItemPayload struct {
	OrderItemID string         `json:"order_item_id"`
	ProductID   string         `json:"product_id"`
	ProductName string         `json:"product_name"`
	Quantity    int            `json:"quantity"`
	Reviewed    bool           `json:"reviewed"`
	Review      *reviewPayload `json:"review,omitempty"`
}

func (h *OrderHandlers) reviewable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reviews_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	items, err := h.reviews.Reviewable(ctx, identity.AccountID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := make([]reviewableItemPayload, 0, len(items))
	for _, item := range items {
		entry := reviewableItemPayload{
			OrderItemID: item.OrderItemID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Reviewed:    item.Review != nil,
		}
		if item.Review != nil {
			review := buildReviewPayload(*item.Review, true)
			entry.Review = &review
		}
		resp = append(resp, entry)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": resp})
}
