package observability

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/receiptqa/receiptqa/internal/config"
)

type ctxKey int

const (
	traceIDKey ctxKey = iota
	annotationsKey
)

// NewLogger builds the service logger. String attributes pass through Mask, so
// an error carrying a DSN or model key is safe to log as is.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{
		Level:       cfg.Observability.LogLevel,
		ReplaceAttr: maskAttr,
	}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func maskAttr(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, Mask(attr.Value.String()))
	case slog.KindAny:
		if err, ok := attr.Value.Any().(error); ok {
			return slog.String(attr.Key, Mask(err.Error()))
		}
	}
	return attr
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey).(string)
	return traceID
}

type annotations struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// Annotate attaches attrs to the request's access log line. It is a no-op
// outside LoggingMiddleware.
func Annotate(ctx context.Context, attrs ...slog.Attr) {
	holder, ok := ctx.Value(annotationsKey).(*annotations)
	if !ok {
		return
	}
	holder.mu.Lock()
	holder.attrs = append(holder.attrs, attrs...)
	holder.mu.Unlock()
}

func (a *annotations) snapshot() []slog.Attr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]slog.Attr(nil), a.attrs...)
}
