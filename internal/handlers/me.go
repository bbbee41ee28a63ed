package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

const maxAddressBodySize = 16 * 1024

// MeHandlers exposes endpoints scoped to the authenticated account.
type MeHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
	reviews   services.ReviewService
}

// NewMeHandlers constructs handlers enforcing authentication before invoking the services.
func NewMeHandlers(authn *auth.Authenticator, addresses services.AddressService, reviews services.ReviewService) *MeHandlers {
	return &MeHandlers{
		authn:     authn,
		addresses: addresses,
		reviews:   reviews,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/", h.getIdentity)
	r.Route("/addresses", h.addressRoutes)
	r.Get("/reviews", h.listReviews)
}

func (h *MeHandlers) getIdentity(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	roles := identity.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"account_id": identity.AccountID,
		"email":      identity.Email,
		"roles":      roles,
		"is_admin":   identity.IsAdmin(),
	})
}

func (h *MeHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reviews_unavailable", "review service unavailable", http.StatusServiceUnavailable))
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
	page, err := h.reviews.ListByAccount(ctx, identity.AccountID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReviewListFor(page, true))
}
