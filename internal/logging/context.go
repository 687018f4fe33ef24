package logging

import (
	"context"
	"log/slog"

	"github.com/rendis/actiondesk/pkg/schema"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
	actionKindKey
)

// WithRequestID returns a context carrying the chat request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithUserID returns a context carrying the requesting user's identifier.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// WithActionKind returns a context carrying the action currently being processed.
func WithActionKind(ctx context.Context, kind schema.ActionKind) context.Context {
	return context.WithValue(ctx, actionKindKey, kind)
}

// RequestID extracts the request ID from the context, or "" if absent.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// UserID extracts the user ID from the context, or "" if absent.
func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userIDKey).(string)
	return v
}

// ActionKind extracts the action kind from the context, or "" if absent.
func ActionKind(ctx context.Context) schema.ActionKind {
	v, _ := ctx.Value(actionKindKey).(schema.ActionKind)
	return v
}

// attrs returns the non-empty correlation attributes found on ctx.
func attrs(ctx context.Context) []slog.Attr {
	out := make([]slog.Attr, 0, 3)
	if v := RequestID(ctx); v != "" {
		out = append(out, slog.String("request_id", v))
	}
	if v := UserID(ctx); v != "" {
		out = append(out, slog.String("user_id", v))
	}
	if v := ActionKind(ctx); v != "" {
		out = append(out, slog.String("action_kind", string(v)))
	}
	return out
}

// LogWith returns a logger enriched with the correlation attributes from the context.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and injects the request, user and
// action attributes carried by the context into every record.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(attrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(as)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
