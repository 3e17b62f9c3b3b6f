package log

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
	// TraceContextKey is the context key for the trace id
	TraceContextKey ContextKey = "trace_id"
)

// NewContext returns a context carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// WithTrace assigns a fresh trace id to ctx and returns a logger tagged with
// it. An existing trace id is kept.
func WithTrace(ctx context.Context, logger *Logger) (context.Context, *Logger) {
	id := TraceID(ctx)
	if id == "" {
		id = uuid.NewString()
		ctx = context.WithValue(ctx, TraceContextKey, id)
	}
	traced := logger.With(FieldTraceID, id)
	return NewContext(ctx, traced), traced
}

// TraceID returns the trace id stored in ctx, if any.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceContextKey).(string)
	return id
}
