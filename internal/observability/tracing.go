// Package observability provides OpenTelemetry tracing and metrics for the
// migration service.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for all loom spans.
const TracerName = "github.com/loomctl/loom"

// TracingConfig configures the OTLP trace export.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// Environment tags spans with the deployment environment.
	Environment string
	// OTLPEndpoint is the collector's gRPC address. Empty disables export;
	// spans still get created but go nowhere, which is free.
	OTLPEndpoint string
	// SampleRate between 0 and 1. At or above 1 every trace is kept.
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "loom",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider owns the exporter lifecycle so teardown can flush spans.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing wires the global tracer provider. With no OTLP endpoint it
// leaves the no-op global in place and returns a provider whose Shutdown
// does nothing.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	switch {
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SampleRate < 1:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

// Shutdown flushes buffered spans and stops the exporter.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the service tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

func tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// TraceMigration opens a span for one migration run. The returned done
// callback records the outcome and closes the span; call it exactly once.
func TraceMigration(ctx context.Context, sourceRepo, targetRepo string) (context.Context, func(status string, attempts int)) {
	ctx, span := tracer().Start(ctx, "migration.run",
		trace.WithAttributes(
			attribute.String("migration.source_repo", sourceRepo),
			attribute.String("migration.target_repo", targetRepo),
		))
	return ctx, func(status string, attempts int) {
		span.SetAttributes(
			attribute.String("migration.status", status),
			attribute.Int("migration.attempts", attempts),
		)
		if status != "migrated" {
			span.SetStatus(codes.Error, "migration "+status)
		}
		span.End()
	}
}

// TraceRetrieval opens a span for one retrieval, tagged with the query
// kind ("tokens" or "section").
func TraceRetrieval(ctx context.Context, kind string) (context.Context, func(recordCount, totalTokens int, err error)) {
	ctx, span := tracer().Start(ctx, "retrieval."+kind)
	return ctx, func(recordCount, totalTokens int, err error) {
		span.SetAttributes(
			attribute.Int("retrieval.record_count", recordCount),
			attribute.Int("retrieval.total_tokens", totalTokens),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// TraceCompletion opens a client span for one LLM completion call.
func TraceCompletion(ctx context.Context, provider string) (context.Context, func(err error)) {
	ctx, span := tracer().Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("llm.provider", provider)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// TraceIngest opens a span for an ingestion run over one repository.
func TraceIngest(ctx context.Context, repository string) (context.Context, func(recordCount int, err error)) {
	ctx, span := tracer().Start(ctx, "ingest.load",
		trace.WithAttributes(attribute.String("ingest.repository", repository)))
	return ctx, func(recordCount int, err error) {
		span.SetAttributes(attribute.Int("ingest.record_count", recordCount))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
