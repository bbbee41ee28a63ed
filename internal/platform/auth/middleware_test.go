package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRequireAuth_AllowsValidToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	authn := NewAuthenticator(testSecret, WithClock(func() time.Time { return now }), WithIssuer("tindahan"))

	raw := signToken(t, jwt.MapClaims{
		"sub":   "acct-42",
		"email": "buyer@example.com",
		"role":  []any{"customer", "admin", "ADMIN"},
		"iss":   "tindahan",
		"exp":   now.Add(time.Hour).Unix(),
	})

	called := false
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.AccountID != "acct-42" {
			t.Fatalf("unexpected account id %q", identity.AccountID)
		}
		if identity.Email != "buyer@example.com" {
			t.Fatalf("unexpected email %q", identity.Email)
		}
		if len(identity.Roles) != 2 || !identity.IsAdmin() {
			t.Fatalf("expected deduplicated roles with admin, got %v", identity.Roles)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Fatalf("expected handler to be called, status %d body %s", rr.Code, rr.Body.String())
	}
}

func TestRequireAuth_RejectsMissingHeader(t *testing.T) {
	authn := NewAuthenticator(testSecret)
	handler := authn.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	authn := NewAuthenticator(testSecret, WithClock(func() time.Time { return now }))
	raw := signToken(t, jwt.MapClaims{"sub": "acct-1", "exp": now.Add(-time.Hour).Unix()})

	handler := authn.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !json.Valid(rr.Body.Bytes()) || !strings.Contains(rr.Body.String(), "token_expired") {
		t.Fatalf("expected token_expired error, got %s", rr.Body.String())
	}
}

func TestRequireAuth_WrongSigningKey(t *testing.T) {
	authn := NewAuthenticator("another-secret")
	raw := signToken(t, jwt.MapClaims{"sub": "acct-1", "exp": time.Now().Add(time.Hour).Unix()})

	handler := authn.RequireAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuth_ForbidsMissingRole(t *testing.T) {
	authn := NewAuthenticator(testSecret)
	raw := signToken(t, jwt.MapClaims{"sub": "acct-1", "exp": time.Now().Add(time.Hour).Unix()})

	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not be called")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestOptionalAuth_PassesAnonymous(t *testing.T) {
	authn := NewAuthenticator(testSecret)
	called := false
	handler := authn.OptionalAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("expected no identity for anonymous request")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatalf("expected handler to be called")
	}
}

func TestOptionalAuth_DefaultsToCustomerRole(t *testing.T) {
	authn := NewAuthenticator(testSecret)
	raw := signToken(t, jwt.MapClaims{"sub": "acct-7", "exp": time.Now().Add(time.Hour).Unix()})

	var identity *Identity
	handler := authn.OptionalAuth()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if identity == nil || !identity.HasRole(RoleCustomer) || identity.IsAdmin() {
		t.Fatalf("expected customer identity, got %+v", identity)
	}
}
