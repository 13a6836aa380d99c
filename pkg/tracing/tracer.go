// Package tracing provides OpenTelemetry tracing for vigil. Executor operations,
// poll cycles and backup cycles each record a span; the operational HTTP surface
// and the sensor gateway client carry W3C trace context.
//
// Example usage:
//
//	tp, shutdown, err := tracing.NewTracerProvider(ctx, cfg.Tracing, cfg.Service.Name)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer shutdown(ctx)
//
//	ctx, span := tracing.StartSpan(ctx, "poll")
//	defer span.End()
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/Combine-Capital/vigil/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InstrumentationName is the tracer name used for vigil spans.
const InstrumentationName = "github.com/Combine-Capital/vigil"

// ShutdownFunc flushes pending spans and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// NewTracerProvider creates a TracerProvider exporting over OTLP and installs it
// as the global provider together with the W3C trace context propagator.
//
// If tracing is disabled it returns an unregistered provider and a no-op shutdown.
func NewTracerProvider(ctx context.Context, cfg config.TracingConfig, serviceName string) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}

	if cfg.Endpoint == "" {
		return nil, nil, fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	svcName := cfg.ServiceName
	if svcName == "" {
		svcName = serviceName
	}
	if svcName == "" {
		return nil, nil, fmt.Errorf("service name is required for tracing")
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceNameKey.String(svcName)),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironmentNameKey.String(cfg.Environment)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.ExportMode {
	case "http":
		exporter, err = createHTTPExporter(ctx, cfg)
	case "grpc", "":
		exporter, err = createGRPCExporter(ctx, cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported export mode: %s (use 'grpc' or 'http')", cfg.ExportMode)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	batchTimeout := 5 * time.Second
	if cfg.BatchTimeout > 0 {
		batchTimeout = cfg.BatchTimeout
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRate)),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(batchTimeout)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	shutdown := func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	}
	return tp, shutdown, nil
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func createGRPCExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent("vigil")),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createHTTPExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

// GetTracer returns a tracer from the global provider.
func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
