package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/receiptqa/receiptqa/internal/auth"
	"github.com/receiptqa/receiptqa/internal/config"
	"github.com/receiptqa/receiptqa/internal/memory"
	"github.com/receiptqa/receiptqa/internal/observability"
	"github.com/receiptqa/receiptqa/internal/pipeline"
	"github.com/receiptqa/receiptqa/internal/query"
	"github.com/receiptqa/receiptqa/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// Asker answers one question end to end.
type Asker interface {
	Ask(ctx context.Context, question pipeline.Question) (pipeline.Turn, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Asker             Asker
	Schema            query.SchemaReader
	Memory            memory.Store
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", observability.Mask(err.Error()), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	gate := func(next http.Handler) http.Handler { return next }
	if cfg.Auth.Required {
		gate = deps.AuthMiddleware
		if gate == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			gate = func(http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
				})
			}
		}
	}
	for _, route := range routes() {
		handle := route.handle
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handle(deps, w, r) })
		mux.Handle(route.pattern, gate(auth.RequireRole(route.role, inner)))
	}

	// Recover sits innermost so a panic still reaches metrics and the access log as a 500.
	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

type route struct {
	pattern string
	role    string
	handle  func(Dependencies, http.ResponseWriter, *http.Request)
}

// routes lists the endpoints behind the auth gate. POST /ask is the
// unversioned path older clients use.
func routes() []route {
	return []route{
		{pattern: "POST /ask", role: auth.RoleAsker, handle: handleAsk},
		{pattern: "POST /v1/ask", role: auth.RoleAsker, handle: handleAsk},
		{pattern: "GET /v1/schema", role: auth.RoleAsker, handle: handleSchema},
		{pattern: "GET /v1/memory/{client_id}", role: auth.RoleMemoryAdmin, handle: handleMemoryHistory},
		{pattern: "DELETE /v1/memory/{client_id}", role: auth.RoleMemoryAdmin, handle: handleMemoryClear},
		{pattern: "DELETE /v1/memory", role: auth.RoleMemoryAdmin, handle: handleMemoryClearAll},
	}
}

// CheckStore reports whether the query store answers a ping.
func CheckStore(store interface{ Ping(context.Context) error }) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("query store is not configured")
		}
		return store.Ping(ctx)
	}
}

// CheckObjectStore lists the extract prefix. A nil store is ready, since the
// object store is optional.
func CheckObjectStore(objects storage.ObjectStore) ReadinessCheck {
	return func(ctx context.Context) error {
		if objects == nil {
			return nil
		}
		if _, err := objects.List(ctx, storage.ExtractPrefix()); err != nil {
			return fmt.Errorf("object store: %w", err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error":      message,
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
