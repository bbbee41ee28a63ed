package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/platform/httpx"
	"github.com/tindahan/api/internal/services"
)

// ProductHandlers exposes the public catalog and product reviews.
type ProductHandlers struct {
	catalog services.CatalogService
	reviews services.ReviewService
}

// NewProductHandlers constructs catalog handlers. reviews may be nil when reviews are disabled.
func NewProductHandlers(catalog services.CatalogService, reviews services.ReviewService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog, reviews: reviews}
}

// Routes wires the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Get("/sale", h.listSale)
	r.Get("/categories", h.listCategories)
	r.Get("/categories/{category}/subcategories", h.listSubcategories)
	r.Get("/{productID}", h.getProduct)
	r.Get("/{productID}/reviews", h.listReviews)
	r.Get("/{productID}/reviews/summary", h.reviewSummary)
}

type productPayload struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	Category       string  `json:"category"`
	Subcategory    string  `json:"subcategory,omitempty"`
	Price          string  `json:"price"`
	SalePrice      *string `json:"sale_price,omitempty"`
	OnSale         bool    `json:"on_sale"`
	EffectivePrice string  `json:"effective_price"`
	StockQuantity  int     `json:"stock_quantity"`
	InStock        bool    `json:"in_stock"`
	ImageURL       string  `json:"image_url,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

func buildProductPayload(p services.Product) productPayload {
	return productPayload{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Category:       p.Category,
		Subcategory:    p.Subcategory,
		Price:          domain.FormatMoney(p.Price),
		SalePrice:      formatMoneyPtr(p.SalePrice),
		OnSale:         p.OnSale,
		EffectivePrice: domain.FormatMoney(p.EffectivePrice()),
		StockQuantity:  p.StockQuantity,
		InStock:        p.StockQuantity > 0,
		ImageURL:       p.ImageURL,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

func buildProductList(page domain.Page[services.Product]) productListResponse {
	resp := productListResponse{Items: make([]productPayload, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, p := range page.Items {
		resp.Items = append(resp.Items, buildProductPayload(p))
	}
	return resp
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *ProductHandlers) listSale(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *ProductHandlers) list(w http.ResponseWriter, r *http.Request, saleOnly bool) {
	ctx := r.Context()
	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		Category:    strings.TrimSpace(query.Get("category")),
		Subcategory: strings.TrimSpace(query.Get("subcategory")),
		Query:       strings.TrimSpace(query.Get("q")),
		OnSaleOnly:  saleOnly,
		Pagination:  pager,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductList(page))
}

func (h *ProductHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": nonNilStrings(categories)})
}

func (h *ProductHandlers) listSubcategories(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(chi.URLParam(r, "category"))
	subcategories, err := h.catalog.ListSubcategories(r.Context(), category)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"category":      category,
		"subcategories": nonNilStrings(subcategories),
	})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reviews_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}
	pager, ok := parsePagination(w, r)
	if !ok {
		return
	}
	page, err := h.reviews.ListByProduct(ctx, chi.URLParam(r, "productID"), pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildReviewList(page))
}

func (h *ProductHandlers) reviewSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reviews_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return
	}
	summary, err := h.reviews.Summary(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	distribution := make(map[string]int, 5)
	for rating := 1; rating <= 5; rating++ {
		distribution[string(rune('0'+rating))] = summary.Distribution[rating]
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"product_id":   summary.ProductID,
		"average":      summary.Average,
		"count":        summary.Count,
		"distribution": distribution,
	})
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
