package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/platform/pagination"
	"github.com/tindahan/api/internal/platform/requestctx"
	"github.com/tindahan/api/internal/services"
)

const defaultMaxBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a size-limited JSON body into dst, writing the 4xx response itself.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid JSON payload: %v", err), http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// requireIdentity returns the authenticated caller or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.AccountID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// cartOwner resolves the account cart for authenticated callers and the session cart otherwise.
func cartOwner(r *http.Request) domain.CartOwner {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.AccountID != "" {
		return domain.AccountOwner(identity.AccountID)
	}
	return domain.SessionOwner(requestctx.SessionToken(r.Context()))
}

func parsePagination(w http.ResponseWriter, r *http.Request) (domain.Pagination, bool) {
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_pagination", err.Error(), http.StatusBadRequest))
		return domain.Pagination{}, false
	}
	return domain.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return value, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatMoney(v int64) string {
	return domain.FormatMoney(v)
}

func formatMoneyPtr(v *int64) *string {
	if v == nil {
		return nil
	}
	s := domain.FormatMoney(*v)
	return &s
}

// moneyInput accepts a JSON number or string in major units ("1299.50") and stores minor units.
type moneyInput struct {
	set   bool
	minor int64
}

func (m *moneyInput) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*m = moneyInput{}
		return nil
	}
	minor, err := domain.ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = moneyInput{set: true, minor: minor}
	return nil
}

func (m moneyInput) ptr() *int64 {
	if !m.set {
		return nil
	}
	v := m.minor
	return &v
}

// writeServiceError translates service sentinel errors into the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var rejection *services.VoucherRejection
	if errors.As(err, &rejection) {
		status := http.StatusBadRequest
		if rejection.Code == services.VoucherRejectNotFound {
			status = http.StatusNotFound
		}
		httpx.WriteError(ctx, w, httpx.NewError("voucher_"+rejection.Code, rejection.Reason, status))
		return
	}
	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		details := make([]map[string]any, 0, len(stockErr.Lines))
		for _, line := range stockErr.Lines {
			details = append(details, map[string]any{
				"product_id": line.ProductID,
				"name":       line.Name,
				"requested":  line.Requested,
				"available":  line.Available,
			})
		}
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict).
			WithDetails(map[string]any{"lines": details}))
		return
	}
	var cartStock *services.CartStockError
	if errors.As(err, &cartStock) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", cartStock.Error(), http.StatusConflict))
		return
	}

	switch {
	case errors.Is(err, services.ErrCartOwnerRequired):
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "X-Session-Token or authentication required", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderPermissionDenied),
		errors.Is(err, services.ErrReviewPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrCatalogNotFound),
		errors.Is(err, services.ErrCartProductNotFound),
		errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrReviewNotFound),
		errors.Is(err, services.ErrAddressNotFound),
		errors.Is(err, services.ErrStoreNotFound),
		errors.Is(err, services.ErrVoucherNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState),
		errors.Is(err, services.ErrReviewInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogConflict),
		errors.Is(err, services.ErrOrderConflict),
		errors.Is(err, services.ErrReviewConflict),
		errors.Is(err, services.ErrVoucherConflict),
		errors.Is(err, services.ErrAddressInUse):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrReviewInvalidInput),
		errors.Is(err, services.ErrAddressInvalidInput),
		errors.Is(err, services.ErrVoucherInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_unavailable", "payment could not be started; the order was cancelled", http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", err.Error(), http.StatusInternalServerError))
	}
}
