package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

const maxReviewBodySize = 8 * 1024

// ReviewHandlers exposes review authoring for authenticated customers.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
}

// NewReviewHandlers constructs review handlers backed by the review service.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService) *ReviewHandlers {
	return &ReviewHandlers{authn: authn, reviews: reviews}
}

// Routes wires the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Post("/", h.createReview)
	r.Put("/{reviewID}", h.updateReview)
	r.Delete("/{reviewID}", h.deleteReview)
}

type reviewPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	OrderID     string `json:"order_id,omitempty"`
	OrderItemID string `json:"order_item_id,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
	AuthorName  string `json:"author_name"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
	IsEdited    bool   `json:"is_edited"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type reviewListResponse struct {
	Items         []reviewPayload `json:"items"`
	NextPageToken string          `json:"next_page_token,omitempty"`
}

// buildReviewPayload renders a review. Order linkage is only exposed to the author.
func buildReviewPayload(review services.Review, owner bool) reviewPayload {
	payload := reviewPayload{
		ID:          review.ID,
		ProductID:   review.ProductID,
		AuthorName:  review.AuthorName,
		Rating:      review.Rating,
		Comment:     review.Comment,
		IsAnonymous: review.IsAnonymous,
		IsEdited:    review.IsEdited,
		CreatedAt:   formatTime(review.CreatedAt),
		UpdatedAt:   formatTime(review.UpdatedAt),
	}
	if owner {
		payload.OrderID = review.OrderID
		payload.OrderItemID = review.OrderItemID
		payload.AccountID = review.AccountID
	}
	return payload
}

func buildReviewList(page domain.Page[services.Review]) reviewListResponse {
	return buildReviewListFor(page, false)
}

func buildReviewListFor(page domain.Page[services.Review], owner bool) reviewListResponse {
	resp := reviewListResponse{Items: make([]reviewPayload, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, review := range page.Items {
		resp.Items = append(resp.Items, buildReviewPayload(review, owner))
	}
	return resp
}

type createReviewRequest struct {
	OrderItemID string `json:"order_item_id"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
	IsAnonymous bool   `json:"is_anonymous"`
}

type updateReviewRequest struct {
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
	IsAnonymous *bool  `json:"is_anonymous"`
}

func (h *ReviewHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.reviews == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("reviews_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}
	review, err := h.reviews.Create(r.Context(), services.CreateReviewCommand{
		AccountID:   identity.AccountID,
		AuthorName:  authorName(identity),
		OrderItemID: strings.TrimSpace(req.OrderItemID),
		Rating:      req.Rating,
		Comment:     req.Comment,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildReviewPayload(review, true))
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req updateReviewRequest
	if !decodeJSONBody(w, r, maxReviewBodySize, &req) {
		return
	}
	review, err := h.reviews.Update(r.Context(), services.UpdateReviewCommand{
		ReviewID:    chi.URLParam(r, "reviewID"),
		AccountID:   identity.AccountID,
		Rating:      req.Rating,
		Comment:     req.Comment,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReviewPayload(review, true))
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.reviews.Delete(r.Context(), services.DeleteReviewCommand{
		ReviewID:  chi.URLParam(r, "reviewID"),
		AccountID: identity.AccountID,
	}); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorName derives a display name from the token email.
func authorName(identity *auth.Identity) string {
	email := strings.TrimSpace(identity.Email)
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	if email != "" {
		return email
	}
	return "Customer"
}
