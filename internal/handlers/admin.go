package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers exposes back-office inventory, order, voucher and reporting endpoints.
type AdminHandlers struct {
	authn    *auth.Authenticator
	catalog  services.CatalogService
	orders   services.OrderService
	vouchers services.VoucherService
	stats    services.StatsService
	audit    services.AuditLogService
}

// AdminDeps groups the services behind the admin routes. Nil services answer 503.
type AdminDeps struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Vouchers services.VoucherService
	Stats    services.StatsService
	Audit    services.AuditLogService
}

// NewAdminHandlers constructs admin handlers guarded by the admin role.
func NewAdminHandlers(authn *auth.Authenticator, deps AdminDeps) *AdminHandlers {
	return &AdminHandlers{
		authn:    authn,
		catalog:  deps.Catalog,
		orders:   deps.Orders,
		vouchers: deps.Vouchers,
		stats:    deps.Stats,
		audit:    deps.Audit,
	}
}

// Routes wires the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin))
	}
	r.Route("/products", func(rt chi.Router) {
		rt.Post("/", h.createProduct)
		rt.Put("/{productID}", h.updateProduct)
		rt.Put("/{productID}/stock", h.setStock)
		rt.Put("/{productID}/price", h.setPrice)
		rt.Put("/{productID}/discount", h.setDiscount)
		rt.Delete("/{productID}", h.deleteProduct)
	})
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Get("/{orderID}", h.getOrder)
		rt.Put("/{orderID}/status", h.updateOrderStatus)
	})
	r.Route("/vouchers", func(rt chi.Router) {
		rt.Get("/", h.listVouchers)
		rt.Post("/", h.createVoucher)
		rt.Get("/{code}", h.getVoucher)
		rt.Put("/{code}", h.updateVoucher)
		rt.Delete("/{code}", h.deleteVoucher)
		rt.Get("/{code}/usage", h.voucherUsage)
	})
	r.Get("/stats", h.dashboard)
	r.Get("/stats/revenue-by-month", h.revenueByMonth)
	r.Get("/stats/top-products", h.topProducts)
	r.Get("/low-stock-products", h.lowStock)
	r.Get("/audit-logs", h.listAuditLogs)
}

func unavailable(w http.ResponseWriter, r *http.Request, name string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(name+"_unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}

// Products ------------------------------------------------------------------

type productRequest struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Category      string     `json:"category"`
	Subcategory   string     `json:"subcategory"`
	ImageURL      string     `json:"image_url"`
	Price         moneyInput `json:"price"`
	SalePrice     moneyInput `json:"sale_price"`
	OnSale        bool       `json:"on_sale"`
	StockQuantity int        `json:"stock_quantity"`
}

func (req productRequest) command(productID, actorID string) services.UpsertProductCommand {
	return services.UpsertProductCommand{
		ProductID:     productID,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Subcategory:   req.Subcategory,
		ImageURL:      req.ImageURL,
		Price:         req.Price.minor,
		SalePrice:     req.SalePrice.ptr(),
		OnSale:        req.OnSale,
		StockQuantity: req.StockQuantity,
		ActorID:       actorID,
	}
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		unavailable(w, r, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	product, err := h.catalog.CreateProduct(r.Context(), req.command("", identity.AccountID))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildProductPayload(product))
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		unavailable(w, r, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	product, err := h.catalog.UpdateProduct(r.Context(), req.command(chi.URLParam(r, "productID"), identity.AccountID))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		unavailable(w, r, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Quantity *int `json:"quantity"`
	}
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	product, err := h.catalog.SetStock(r.Context(), services.SetStockCommand{
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  *req.Quantity,
		ActorID:   identity.AccountID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminHandlers) setPrice(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		unavailable(w, r, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		Price moneyInput `json:"price"`
	}
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	product, err := h.catalog.SetPrice(r.Context(), services.SetPriceCommand{
		ProductID: chi.URLParam(r, "productID"),
		Price:     req.Price.minor,
		ActorID:   identity.AccountID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminHandlers) setDiscount(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		unavailable(w, r, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		SalePrice moneyInput `json:"sale_price"`
		OnSale    bool       `json:"on_sale"`
	}
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	product, err := h.catalog.SetDiscount(r.Context(), services.SetDiscountCommand{
		ProductID: chi.URLParam(r, "productID"),
		SalePrice: req.SalePrice.ptr(),
		OnSale:    req.OnSale,
		ActorID:   identity.AccountID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		unavailable(w, r, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), services.DeleteProductCommand{
		ProductID: chi.URLParam(r, "productID"),
		ActorID:   identity.AccountID,
	}); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Orders --------------------------------------------------------------------

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	var statuses []domain.ShippingStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, valid := domain.ParseShippingStatus(part)
			if !valid {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unknown status "+strings.TrimSpace(part), http.StatusBadRequest))
				return
			}
			statuses = append(statuses, status)
		}
	}
	page, err := h.orders.ListOrders(r.Context(), services.OrderListFilter{
		ShippingStatus: statuses,
		Pagination:     pager,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(r.Context(), services.OrderQuery{
		OrderID:   chi.URLParam(r, "orderID"),
		AccountID: identity.AccountID,
		IsAdmin:   true,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		unavailable(w, r, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req struct {
		ShippingStatus string `json:"shipping_status"`
		Note           string `json:"note"`
	}
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	target, valid := domain.ParseShippingStatus(req.ShippingStatus)
	if !valid {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "unknown shipping_status", http.StatusBadRequest))
		return
	}
	order, err := h.orders.TransitionShipping(r.Context(), services.TransitionCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		Target:       target,
		Note:         req.Note,
		ActorID:      identity.AccountID,
		ActorIsAdmin: identity.IsAdmin(),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// Vouchers ------------------------------------------------------------------

type voucherPayload struct {
	Code              string  `json:"code"`
	Description       string  `json:"description,omitempty"`
	DiscountType      string  `json:"discount_type"`
	DiscountValue     string  `json:"discount_value"`
	MinPurchaseAmount *string `json:"min_purchase_amount,omitempty"`
	MaxDiscountAmount *string `json:"max_discount_amount,omitempty"`
	ValidFrom         string  `json:"valid_from"`
	ValidUntil        string  `json:"valid_until"`
	UsageLimit        *int    `json:"usage_limit,omitempty"`
	UsageCount        int     `json:"usage_count"`
	IsActive          bool    `json:"is_active"`
	CreatedAt         string  `json:"created_at,omitempty"`
	UpdatedAt         string  `json:"updated_at,omitempty"`
}

type voucherUpsertRequest struct {
	Code              string     `json:"code"`
	Description       string     `json:"description"`
	DiscountType      string     `json:"discount_type"`
	DiscountValue     moneyInput `json:"discount_value"`
	MinPurchaseAmount moneyInput `json:"min_purchase_amount"`
	MaxDiscountAmount moneyInput `json:"max_discount_amount"`
	ValidFrom         time.Time  `json:"valid_from"`
	ValidUntil        time.Time  `json:"valid_until"`
	UsageLimit        *int       `json:"usage_limit"`
	IsActive          *bool      `json:"is_active"`
}

func (req voucherUpsertRequest) command(code, actorID string) services.UpsertVoucherCommand {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if code == "" {
		code = req.Code
	}
	return services.UpsertVoucherCommand{
		Code:              code,
		Description:       req.Description,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue.minor,
		MinPurchaseAmount: req.MinPurchaseAmount.ptr(),
		MaxDiscountAmount: req.MaxDiscountAmount.ptr(),
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		UsageLimit:        req.UsageLimit,
		IsActive:          active,
		ActorID:           actorID,
	}
}

func buildVoucherPayload(v services.Voucher) voucherPayload {
	return voucherPayload{
		Code:              v.Code,
		Description:       v.Description,
		DiscountType:      string(v.DiscountType),
		DiscountValue:     formatMoney(v.DiscountValue),
		MinPurchaseAmount: formatMoneyPtr(v.MinPurchaseAmount),
		MaxDiscountAmount: formatMoneyPtr(v.MaxDiscountAmount),
		ValidFrom:         formatTime(v.ValidFrom),
		ValidUntil:        formatTime(v.ValidUntil),
		UsageLimit:        v.UsageLimit,
		UsageCount:        v.UsageCount,
		IsActive:          v.IsActive,
		CreatedAt:         formatTime(v.CreatedAt),
		UpdatedAt:         formatTime(v.UpdatedAt),
	}
}

func (h *AdminHandlers) listVouchers(w http.ResponseWriter, r *http.Request) {
	if h.vouchers == nil {
		unavailable(w, r, "voucher")
		return
	}
	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	page, err := h.vouchers.ListVouchers(r.Context(), services.VoucherListFilter{
		ActiveOnly: strings.EqualFold(r.URL.Query().Get("active"), "true"),
		Pagination: pager,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]voucherPayload, 0, len(page.Items))
	for _, v := range page.Items {
		items = append(items, buildVoucherPayload(v))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items, "next_page_token": page.NextPageToken})
}

func (h *AdminHandlers) getVoucher(w http.ResponseWriter, r *http.Request) {
	if h.vouchers == nil {
		unavailable(w, r, "voucher")
		return
	}
	voucher, err := h.vouchers.GetVoucher(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVoucherPayload(voucher))
}

func (h *AdminHandlers) createVoucher(w http.ResponseWriter, r *http.Request) {
	if h.vouchers == nil {
		unavailable(w, r, "voucher")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req voucherUpsertRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	voucher, err := h.vouchers.CreateVoucher(r.Context(), req.command("", identity.AccountID))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildVoucherPayload(voucher))
}

func (h *AdminHandlers) updateVoucher(w http.ResponseWriter, r *http.Request) {
	if h.vouchers == nil {
		unavailable(w, r, "voucher")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req voucherUpsertRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	voucher, err := h.vouchers.UpdateVoucher(r.Context(), req.command(chi.URLParam(r, "code"), identity.AccountID))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildVoucherPayload(voucher))
}

func (h *AdminHandlers) deleteVoucher(w http.ResponseWriter, r *http.Request) {
	if h.vouchers == nil {
		unavailable(w, r, "voucher")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	result, err := h.vouchers.DeleteVoucher(r.Context(), services.DeleteVoucherCommand{
		Code:    chi.URLParam(r, "code"),
		ActorID: identity.AccountID,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"code":        result.Code,
		"deleted":     !result.Deactivated,
		"deactivated": result.Deactivated,
	})
}

func (h *AdminHandlers) voucherUsage(w http.ResponseWriter, r *http.Request) {
	if h.vouchers == nil {
		unavailable(w, r, "voucher")
		return
	}
	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	page, err := h.vouchers.ListUsage(r.Context(), chi.URLParam(r, "code"), pager)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]map[string]any, 0, len(page.Items))
	for _, usage := range page.Items {
		items = append(items, map[string]any{
			"id":              usage.ID,
			"voucher_code":    usage.VoucherCode,
			"account_id":      usage.AccountID,
			"order_id":        usage.OrderID,
			"discount_amount": formatMoney(usage.DiscountAmount),
			"used_at":         formatTime(usage.UsedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items, "next_page_token": page.NextPageToken})
}

// Stats ---------------------------------------------------------------------

func (h *AdminHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		unavailable(w, r, "stats")
		return
	}
	stats, err := h.stats.Dashboard(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"total_orders":     stats.TotalOrders,
		"total_products":   stats.TotalProducts,
		"total_revenue":    formatMoney(stats.TotalRevenue),
		"pending_orders":   stats.PendingOrders,
		"active_orders":    stats.ActiveOrders,
		"completed_orders": stats.CompletedOrders,
		"cancelled_orders": stats.CancelledOrders,
		"low_stock_count":  stats.LowStockCount,
	})
}

func (h *AdminHandlers) revenueByMonth(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		unavailable(w, r, "stats")
		return
	}
	months, err := queryInt(r, "months", 0)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	rows, err := h.stats.RevenueByMonth(r.Context(), months)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, map[string]any{
			"month":   row.Month,
			"revenue": formatMoney(row.Revenue),
			"orders":  row.Orders,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) topProducts(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		unavailable(w, r, "stats")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	rows, err := h.stats.TopProducts(r.Context(), limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, map[string]any{
			"product_id":    row.ProductID,
			"name":          row.Name,
			"quantity_sold": row.QuantitySold,
			"revenue":       formatMoney(row.Revenue),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *AdminHandlers) lowStock(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		unavailable(w, r, "stats")
		return
	}
	threshold, err := queryInt(r, "threshold", 0)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	products, err := h.stats.LowStock(r.Context(), threshold, limit)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]productPayload, 0, len(products))
	for _, p := range products {
		items = append(items, buildProductPayload(p))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

// Audit ---------------------------------------------------------------------

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		unavailable(w, r, "audit")
		return
	}
	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := h.audit.List(r.Context(), services.AuditLogFilter{
		TargetType: strings.TrimSpace(query.Get("target_type")),
		TargetID:   strings.TrimSpace(query.Get("target_id")),
		Pagination: pager,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	items := make([]map[string]any, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, map[string]any{
			"id":          entry.ID,
			"actor_id":    entry.ActorID,
			"action":      entry.Action,
			"target_type": entry.TargetType,
			"target_id":   entry.TargetID,
			"details":     entry.Details,
			"created_at":  formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items, "next_page_token": page.NextPageToken})
}
