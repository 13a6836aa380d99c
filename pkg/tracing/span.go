package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys recorded on vigil spans.
const (
	AttrCategory    = attribute.Key("vigil.category")
	AttrOperation   = attribute.Key("vigil.operation")
	AttrShape       = attribute.Key("vigil.shape")
	AttrAttempts    = attribute.Key("vigil.attempts")
	AttrOutcome     = attribute.Key("vigil.outcome")
	AttrSensorCount = attribute.Key("vigil.sensor_count")
	AttrBackupFile  = attribute.Key("vigil.backup_file")
	AttrPruned      = attribute.Key("vigil.pruned")
)

// StartSpan starts a span named name as a child of the span in ctx.
//
// Example:
//
//	ctx, span := tracing.StartSpan(ctx, "backup.cycle",
//	    trace.WithAttributes(tracing.AttrBackupFile.String(info.FileName)))
//	defer span.End()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, opts...)
}

// SpanFromContext returns the span in ctx, or a no-op span.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// SetSpanError records err on the span in ctx and marks it failed. nil is ignored.
func SetSpanError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// OperationAttributes describes an executor call.
func OperationAttributes(category, name, shape string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrCategory.String(category),
		AttrOperation.String(name),
		AttrShape.String(shape),
	}
}

// InjectHTTP writes the trace context of ctx into header.
func InjectHTTP(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// ExtractHTTP returns ctx carrying the trace context found in header.
func ExtractHTTP(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}
