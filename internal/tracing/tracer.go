// Package tracing wires OpenTelemetry spans around the three places a
// mapping request suspends on I/O: a dispatcher-level adapter invocation, a
// cache-store transaction, and a RAG pipeline stage.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider manages the lifecycle of the OpenTelemetry tracer.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider creates an OTLP/gRPC-exporting tracer provider. If
// otlpEndpoint is empty, traces are sampled but never exported — useful in
// local development and tests where no collector is running.
func NewProvider(serviceName, serviceVersion, otlpEndpoint string) (*Provider, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("biomapper"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if otlpEndpoint != "" {
		exporter, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(otlpEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("tracing: create otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes and stops the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// Tracer issues spans for the mapping-resolution engine's suspension points.
type Tracer struct {
	tracer trace.Tracer
}

func NewTracer(serviceName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// StartDispatchSpan wraps one adapter invocation inside Dispatcher.MapEntity.
func (t *Tracer) StartDispatchSpan(ctx context.Context, resource, sourceType, targetType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dispatcher.invoke",
		trace.WithAttributes(
			attribute.String("resource", resource),
			attribute.String("source_type", sourceType),
			attribute.String("target_type", targetType),
		),
	)
}

// StartCacheSpan wraps one cache-store transaction (lookup, add_mapping).
func (t *Tracer) StartCacheSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "cache."+operation,
		trace.WithAttributes(attribute.String("component", "cache")),
	)
}

// StartRAGStageSpan wraps one stage of the RAG pipeline (vector_search,
// annotation_fetch, llm_arbitration).
func (t *Tracer) StartRAGStageSpan(ctx context.Context, stage, query string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "rag."+stage,
		trace.WithAttributes(
			attribute.String("rag.stage", stage),
			attribute.String("rag.query", query),
		),
	)
}

// RecordOutcome sets span status and optional duration/error attributes.
func (t *Tracer) RecordOutcome(span trace.Span, duration time.Duration, err error) {
	span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
}
