// Package tracing sets up OpenTelemetry export and holds the span helpers used
// by the report workflow, the classifier and the reputation ledger.
package tracing

import (
	"context"
	"fmt"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "tangled.org/studyhub.social/warden"

// Options configures the exporter.
type Options struct {
	// Endpoint is the collector's host:port.
	Endpoint string
	// Environment is recorded as deployment.environment.
	Environment string
	// SampleRatio is the fraction of root spans kept. Child spans follow
	// their parent's decision.
	SampleRatio float64
}

// Looked up on every call so spans pick up the provider installed by Init.
func tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Init installs a global tracer provider exporting over OTLP/HTTP. The caller
// owns the returned provider and must Shutdown it to flush pending spans.
func Init(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	otel.SetLogger(zerologr.New(&log.Logger))

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
		sdktrace.WithResource(newResource(opts.Environment)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

func newResource(env string) *resource.Resource {
	attrs := []attribute.KeyValue{semconv.ServiceName("warden")}
	if env != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(env))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

// ReportSpan starts a span for a report workflow operation.
func ReportSpan(ctx context.Context, op, reportID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "moderation."+op, trace.WithAttributes(
		attribute.String("moderation.operation", op),
		attribute.String("moderation.report_id", reportID),
	))
}

// ClassifierSpan wraps one classifier request.
func ClassifierSpan(ctx context.Context, model, contentID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "classifier.classify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("classifier.model", model),
			attribute.String("classifier.content_id", contentID),
		),
	)
}

// LedgerSpan wraps one reputation increment.
func LedgerSpan(ctx context.Context, userID, category string, delta int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "reputation.increment", trace.WithAttributes(
		attribute.String("reputation.user_id", userID),
		attribute.String("reputation.category", category),
		attribute.Int("reputation.delta", delta),
	))
}

// EndWithError marks span as failed when err is non-nil. It does not end the
// span.
func EndWithError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
