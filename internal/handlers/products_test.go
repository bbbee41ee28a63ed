package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/domain"
	"github.com/tindahan/api/internal/services"
)

func newProductRouter(catalog services.CatalogService, reviews services.ReviewService) chi.Router {
	router := chi.NewRouter()
	router.Route("/products", NewProductHandlers(catalog, reviews).Routes)
	return router
}

func TestProductHandlersListProducts(t *testing.T) {
	sale := int64(8000)
	var gotFilter services.ProductListFilter
	catalog := &stubCatalogService{
		listFn: func(_ context.Context, filter services.ProductListFilter) (domain.Page[services.Product], error) {
			gotFilter = filter
			return domain.Page[services.Product]{
				Items: []services.Product{
					{ID: "prd_1", Name: "Jasmine Rice 5kg", Category: "Grocery", Price: 10000, SalePrice: &sale, OnSale: true, StockQuantity: 4},
				},
				NextPageToken: "next",
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/products?category=Grocery&q=rice&page_size=5", nil)
	newProductRouter(catalog, nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotFilter.Category != "Grocery" || gotFilter.Query != "rice" || gotFilter.OnSaleOnly || gotFilter.Pagination.PageSize != 5 {
		t.Fatalf("unexpected filter %+v", gotFilter)
	}
	var resp productListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %+v", resp)
	}
	item := resp.Items[0]
	if item.Price != "100.00" || item.EffectivePrice != "80.00" || item.SalePrice == nil || *item.SalePrice != "80.00" || !item.InStock {
		t.Fatalf("unexpected product payload %+v", item)
	}
}

func TestProductHandlersSaleUsesOnSaleFilter(t *testing.T) {
	var gotFilter services.ProductListFilter
	catalog := &stubCatalogService{
		listFn: func(_ context.Context, filter services.ProductListFilter) (domain.Page[services.Product], error) {
			gotFilter = filter
			return domain.Page[services.Product]{}, nil
		},
	}
	rr := httptest.NewRecorder()
	newProductRouter(catalog, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/sale", nil))
	if rr.Code != http.StatusOK || !gotFilter.OnSaleOnly {
		t.Fatalf("expected on-sale filter, status %d filter %+v", rr.Code, gotFilter)
	}
}

func TestProductHandlersGetProductNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	newProductRouter(&stubCatalogService{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/prd_missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestProductHandlersSubcategories(t *testing.T) {
	catalog := &stubCatalogService{subcategories: []string{"Rice", "Noodles"}}
	rr := httptest.NewRecorder()
	newProductRouter(catalog, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/categories/Grocery/subcategories", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		Category      string   `json:"category"`
		Subcategories []string `json:"subcategories"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Category != "Grocery" || len(body.Subcategories) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestProductHandlersReviewSummary(t *testing.T) {
	reviews := &stubReviewService{
		summary: services.ReviewSummary{Average: 4.5, Count: 2, Distribution: map[int]int{4: 1, 5: 1}},
	}
	rr := httptest.NewRecorder()
	newProductRouter(&stubCatalogService{}, reviews).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/prd_1/reviews/summary", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		ProductID    string         `json:"product_id"`
		Average      float64        `json:"average"`
		Distribution map[string]int `json:"distribution"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ProductID != "prd_1" || body.Average != 4.5 {
		t.Fatalf("unexpected summary %+v", body)
	}
	if len(body.Distribution) != 5 || body.Distribution["5"] != 1 || body.Distribution["1"] != 0 {
		t.Fatalf("expected full 1-5 distribution, got %v", body.Distribution)
	}
}

func TestProductHandlersReviewsHideAccount(t *testing.T) {
	reviews := &stubReviewService{
		listFn: func(_ context.Context, productID string, _ services.Pagination) (domain.Page[services.Review], error) {
			return domain.Page[services.Review]{Items: []services.Review{
				{ID: "rev_1", ProductID: productID, AccountID: "acct_1", OrderID: "ord_1", AuthorName: "Anonymous", Rating: 5, IsAnonymous: true},
			}}, nil
		},
	}
	rr := httptest.NewRecorder()
	newProductRouter(&stubCatalogService{}, reviews).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products/prd_1/reviews", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp reviewListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].AccountID != "" || resp.Items[0].OrderID != "" {
		t.Fatalf("expected public review payload, got %+v", resp.Items)
	}
}
