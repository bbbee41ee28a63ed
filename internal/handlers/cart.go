package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/platform/requestctx"
	"github.com/tindahan/api/internal/services"
)

// SessionTokenHeader carries the anonymous cart token in both directions.
const SessionTokenHeader = "X-Session-Token"

const maxCartBodySize = 16 * 1024

// SessionMiddleware resolves the anonymous cart token. Anonymous callers without one are
// issued a fresh token in the response header.
func SessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(SessionTokenHeader))
			if token == "" {
				if identity, ok := auth.IdentityFromContext(r.Context()); !ok || identity.AccountID == "" {
					token = uuid.NewString()
				}
			}
			if token != "" {
				w.Header().Set(SessionTokenHeader, token)
				r = r.WithContext(requestctx.WithSessionToken(r.Context(), token))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CartHandlers exposes session and account cart endpoints.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs cart handlers. authn may be nil in tests that inject identities.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.OptionalAuth())
	}
	r.Use(SessionMiddleware())
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.setItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Post("/merge", h.merge)
}

type cartLinePayload struct {
	ProductID     string `json:"product_id"`
	Name          string `json:"name"`
	ImageURL      string `json:"image_url,omitempty"`
	UnitPrice     string `json:"unit_price"`
	Quantity      int    `json:"quantity"`
	LineTotal     string `json:"line_total"`
	StockQuantity int    `json:"stock_quantity"`
}

type cartPayload struct {
	Items     []cartLinePayload `json:"items"`
	Subtotal  string            `json:"subtotal"`
	ItemCount int               `json:"item_count"`
}

func buildCartPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		Items:     make([]cartLinePayload, 0, len(view.Lines)),
		Subtotal:  formatMoney(view.Subtotal),
		ItemCount: view.ItemCount,
	}
	for _, line := range view.Lines {
		payload.Items = append(payload.Items, cartLinePayload{
			ProductID:     line.ProductID,
			Name:          line.Name,
			ImageURL:      line.ImageURL,
			UnitPrice:     formatMoney(line.UnitPrice),
			Quantity:      line.Quantity,
			LineTotal:     formatMoney(line.LineTotal),
			StockQuantity: line.StockQuantity,
		})
	}
	return payload
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

func (h *CartHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.carts == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	view, err := h.carts.Get(r.Context(), cartOwner(r))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var req cartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	view, err := h.carts.AddItem(r.Context(), services.CartItemCommand{
		Owner:     cartOwner(r),
		ProductID: strings.TrimSpace(req.ProductID),
		Quantity:  quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) setItem(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	var req cartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	view, err := h.carts.SetQuantity(r.Context(), services.CartItemCommand{
		Owner:     cartOwner(r),
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  *req.Quantity,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	view, err := h.carts.RemoveItem(r.Context(), cartOwner(r), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	if err := h.carts.Clear(r.Context(), cartOwner(r)); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) merge(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	token := strings.TrimSpace(r.Header.Get(SessionTokenHeader))
	if token == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("session_required", SessionTokenHeader+" header is required", http.StatusBadRequest))
		return
	}
	view, err := h.carts.Merge(r.Context(), domain.SessionOwner(token), domain.AccountOwner(identity.AccountID))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(view))
}
