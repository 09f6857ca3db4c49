package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/receiptqa/receiptqa/internal/observability"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// Middleware authenticates every request with an X-API-Key header or a
// Bearer token and stores the resulting Identity in the request context.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, source := credentials(r)
			if key == "" {
				deny(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing API key")
				return
			}
			identity, ok := validator.Validate(r.Context(), key)
			if !ok {
				if logger != nil {
					logger.WarnContext(r.Context(), "api key rejected",
						slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
						slog.String("source", source),
						slog.String("path", r.URL.Path),
					)
				}
				deny(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid API key")
				return
			}
			observability.Annotate(r.Context(), slog.String("principal", identity.Principal))
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole rejects authenticated callers that lack role. Requests without an
// identity pass through, which is how auth-disabled deployments behave.
func RequireRole(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity, ok := IdentityFromContext(r.Context()); ok && !identity.HasRole(role) {
			deny(w, r, http.StatusForbidden, "FORBIDDEN", "role "+role+" is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func credentials(r *http.Request) (key, source string) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, "x-api-key"
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if found && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token), "bearer"
	}
	return "", ""
}

func deny(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      message,
		"error_code": code,
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
