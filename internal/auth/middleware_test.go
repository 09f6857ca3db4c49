package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticAPIKeyValidatorParsing(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:web:memory_admin|asker, k2:mcp:asker")
	if err != nil {
		t.Fatalf("NewStaticAPIKeyValidator() error = %v", err)
	}
	identity, ok := validator.Validate(context.Background(), "k1")
	if !ok {
		t.Fatal("expected key to be valid")
	}
	if identity.Principal != "web" {
		t.Fatalf("Principal = %q", identity.Principal)
	}
	if !identity.HasRole(RoleAsker) || !identity.HasRole(RoleMemoryAdmin) {
		t.Fatalf("roles = %v", identity.Roles)
	}
	if identity.Roles[0] != RoleAsker {
		t.Fatalf("roles should be sorted: %v", identity.Roles)
	}
	if _, ok := validator.Validate(context.Background(), "nope"); ok {
		t.Fatal("unknown key should be rejected")
	}
}

func TestStaticAPIKeyValidatorRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{
		"invalid",
		"k1::asker",
		"k1:web:",
		"k1:web:superuser",
		"k1:web:asker,k1:cli:asker",
	} {
		if _, err := NewStaticAPIKeyValidator(spec); err == nil {
			t.Fatalf("NewStaticAPIKeyValidator(%q) expected parse error", spec)
		}
	}
}

func TestMiddlewareRequiresKey(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:web:asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), validator)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set("X-API-Key", "wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestMiddlewareInjectsIdentityFromBearer(t *testing.T) {
	validator, err := NewStaticAPIKeyValidator("k1:web:asker")
	if err != nil {
		t.Fatalf("validator setup: %v", err)
	}

	handler := Middleware(nil, validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.Principal != "web" {
			t.Fatalf("Principal = %q", identity.Principal)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set("Authorization", "bearer k1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleMemoryAdmin, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name     string
		identity *Identity
		want     int
	}{
		{name: "no auth", identity: nil, want: http.StatusNoContent},
		{name: "asker only", identity: &Identity{Principal: "web", Roles: []string{RoleAsker}}, want: http.StatusForbidden},
		{name: "admin", identity: &Identity{Principal: "ops", Roles: []string{RoleMemoryAdmin}}, want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/v1/memory", nil)
			if tc.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tc.identity))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestCredentialsSources(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set("Authorization", "Bearer  k2 ")
	if key, source := credentials(req); key != "k2" || source != "bearer" {
		t.Fatalf("credentials() = %q, %q", key, source)
	}
	req.Header.Set("X-API-Key", "k1")
	if key, source := credentials(req); key != "k1" || source != "x-api-key" {
		t.Fatalf("credentials() = %q, %q", key, source)
	}
	basic := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	basic.Header.Set("Authorization", "Basic abc")
	if key, _ := credentials(basic); key != "" {
		t.Fatalf("credentials() with basic auth = %q", key)
	}
}
