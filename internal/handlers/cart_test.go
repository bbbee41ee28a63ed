package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan/api/internal/services"
)

func newCartRouter(carts services.CartService) chi.Router {
	router := chi.NewRouter()
	router.Route("/cart", NewCartHandlers(nil, carts).Routes)
	return router
}

func TestCartHandlersIssuesSessionToken(t *testing.T) {
	var gotOwner services.CartOwner
	carts := &stubCartService{
		getFn: func(_ context.Context, owner services.CartOwner) (services.CartView, error) {
			gotOwner = owner
			return services.CartView{Owner: owner}, nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	token := rr.Header().Get(SessionTokenHeader)
	if token == "" {
		t.Fatalf("expected a session token header")
	}
	if !gotOwner.IsSession() || gotOwner.ID() != token {
		t.Fatalf("expected session owner %q, got %v", token, gotOwner)
	}
}

func TestCartHandlersUsesAccountOwnerWhenAuthenticated(t *testing.T) {
	var gotOwner services.CartOwner
	carts := &stubCartService{
		getFn: func(_ context.Context, owner services.CartOwner) (services.CartView, error) {
			gotOwner = owner
			return services.CartView{
				Owner: owner,
				Lines: []services.PricedCartLine{
					{ProductID: "prd_1", Name: "Coffee", UnitPrice: 15050, Quantity: 2, LineTotal: 30100, StockQuantity: 9},
				},
				Subtotal:  30100,
				ItemCount: 2,
			}, nil
		},
	}

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/cart", nil), "acct_1")
	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get(SessionTokenHeader) != "" {
		t.Fatalf("did not expect a session token for an authenticated caller")
	}
	if !gotOwner.IsAccount() || gotOwner.ID() != "acct_1" {
		t.Fatalf("expected account owner, got %v", gotOwner)
	}
	var resp cartPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Subtotal != "301.00" || resp.ItemCount != 2 || len(resp.Items) != 1 || resp.Items[0].UnitPrice != "150.50" {
		t.Fatalf("unexpected cart payload %+v", resp)
	}
}

func TestCartHandlersAddItemDefaultsQuantity(t *testing.T) {
	var got services.CartItemCommand
	carts := &stubCartService{
		addFn: func(_ context.Context, cmd services.CartItemCommand) (services.CartView, error) {
			got = cmd
			return services.CartView{Owner: cmd.Owner}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":" prd_1 "}`))
	req.Header.Set(SessionTokenHeader, "sess-1")
	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.ProductID != "prd_1" || got.Quantity != 1 || got.Owner.ID() != "sess-1" {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCartHandlersAddItemStockConflict(t *testing.T) {
	carts := &stubCartService{
		addFn: func(context.Context, services.CartItemCommand) (services.CartView, error) {
			return services.CartView{}, &services.CartStockError{ProductID: "prd_1", Available: 3}
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/cart/items", strings.NewReader(`{"product_id":"prd_1","quantity":5}`))
	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Only 3 items available in stock") {
		t.Fatalf("expected stock message, got %s", rr.Body.String())
	}
}

func TestCartHandlersSetItemRequiresQuantity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/cart/items/prd_1", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	newCartRouter(&stubCartService{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveAndClear(t *testing.T) {
	carts := &stubCartService{}
	router := newCartRouter(carts)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/cart/items/prd_9", nil))
	if rr.Code != http.StatusOK || len(carts.removed) != 1 || carts.removed[0] != "prd_9" {
		t.Fatalf("remove: status %d removed %v", rr.Code, carts.removed)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/cart", nil))
	if rr.Code != http.StatusNoContent || len(carts.cleared) != 1 {
		t.Fatalf("clear: status %d cleared %v", rr.Code, carts.cleared)
	}
}

func TestCartHandlersMerge(t *testing.T) {
	var from, into services.CartOwner
	carts := &stubCartService{
		mergeFn: func(_ context.Context, f, i services.CartOwner) (services.CartView, error) {
			from, into = f, i
			return services.CartView{Owner: i}, nil
		},
	}
	router := newCartRouter(carts)

	anonymous := httptest.NewRequest(http.MethodPost, "/cart/merge", nil)
	anonymous.Header.Set(SessionTokenHeader, "sess-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, anonymous)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rr.Code)
	}

	missingToken := withIdentity(httptest.NewRequest(http.MethodPost, "/cart/merge", nil), "acct_1")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, missingToken)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session token, got %d", rr.Code)
	}

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/cart/merge", nil), "acct_1")
	req.Header.Set(SessionTokenHeader, "sess-7")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !from.IsSession() || from.ID() != "sess-7" || !into.IsAccount() || into.ID() != "acct_1" {
		t.Fatalf("unexpected merge owners %v -> %v", from, into)
	}
}
