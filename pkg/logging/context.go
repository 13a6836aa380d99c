package logging

import (
	"context"

	"github.com/Combine-Capital/vigil/pkg/config"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	loggerContextKey  = contextKey("vigil.logger")
	traceIDContextKey = contextKey("vigil.trace_id")
	spanIDContextKey  = contextKey("vigil.span_id")
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext extracts a logger from the context.
// If no logger is found, it returns a default logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return enrichLoggerFromContext(ctx, logger)
	}
	return enrichLoggerFromContext(ctx, New(defaultLogConfig()))
}

func defaultLogConfig() config.LogConfig {
	return config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

// enrichLoggerFromContext adds trace/span IDs to logger. An active
// OpenTelemetry span wins over IDs stored with WithTraceContext.
func enrichLoggerFromContext(ctx context.Context, logger *Logger) *Logger {
	fields := make(map[string]interface{})

	traceID, spanID := GetTraceID(ctx), GetSpanID(ctx)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID = sc.TraceID().String()
		spanID = sc.SpanID().String()
	}

	if traceID != "" {
		fields[TraceID] = traceID
	}
	if spanID != "" {
		fields[SpanID] = spanID
	}

	if len(fields) > 0 {
		return logger.WithFields(fields)
	}
	return logger
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDContextKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(traceIDContextKey).(string); ok {
		return traceID
	}
	return ""
}

// WithSpanID adds a span ID to the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDContextKey, spanID)
}

// GetSpanID retrieves the span ID from the context.
func GetSpanID(ctx context.Context) string {
	if spanID, ok := ctx.Value(spanIDContextKey).(string); ok {
		return spanID
	}
	return ""
}

// WithTraceContext adds both trace and span IDs to the context.
func WithTraceContext(ctx context.Context, traceID, spanID string) context.Context {
	ctx = WithTraceID(ctx, traceID)
	ctx = WithSpanID(ctx, spanID)
	return ctx
}

// Ctx returns the context-aware zerolog logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	return FromContext(ctx).GetZerolog()
}
