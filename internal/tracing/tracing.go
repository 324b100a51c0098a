// Package tracing wires recordb's ingest and query-bridge steps into
// OpenTelemetry spans. It owns no exporter: callers configure one
// (otlp, stdout, etc.) on the process's global TracerProvider the
// usual otel way, and this package only calls otel.Tracer to pick that
// provider up.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/leengari/recordb"

// InstallTracerProvider builds a TracerProvider from exporter (nil is
// valid — spans are then simply dropped after sampling) and installs
// it as the process-global provider, so every later tracing.Tracer()
// call picks it up. Returns the provider so the caller can Shutdown it.
func InstallTracerProvider(exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	var opts []sdktrace.TracerProviderOption
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the recordb instrumentation-scoped tracer, resolved
// against whatever TracerProvider the process has registered globally
// (a no-op provider if none has been set).
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartIngest begins a span around one ingest call, tagging it with
// the byte length of the batch and, when non-empty, the source name.
func StartIngest(ctx context.Context, bytes int, sourceName string) (context.Context, trace.Span) {
	attrs := []trace.SpanStartOption{
		trace.WithAttributes(
			attribute.Int("recordb.ingest.bytes", bytes),
		),
	}
	if sourceName != "" {
		attrs = append(attrs, trace.WithAttributes(attribute.String("recordb.ingest.source", sourceName)))
	}
	return Tracer().Start(ctx, "recordb.Ingest", attrs...)
}

// StartQuery begins a span around one query, tagging it with the raw
// SQL text.
func StartQuery(ctx context.Context, sqlText string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "recordb.Query", trace.WithAttributes(attribute.String("recordb.query.sql", sqlText)))
}

// Meter returns the recordb instrumentation-scoped meter, resolved
// against the process-global MeterProvider the same way Tracer
// resolves spans.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// IngestCounters bundles the otel instruments the facade updates per
// ingest call. Instrument creation only fails on malformed names, so
// NewIngestCounters panics rather than returning an error a caller
// could do nothing useful with.
type IngestCounters struct {
	Batches metric.Int64Counter
	Records metric.Int64Counter
	Bytes   metric.Int64Counter
}

// NewIngestCounters builds the ingest instruments against the current
// global MeterProvider.
func NewIngestCounters() IngestCounters {
	m := Meter()
	batches, err := m.Int64Counter("recordb.ingest.batches", metric.WithDescription("ingest batches processed"))
	if err != nil {
		panic(err)
	}
	records, err := m.Int64Counter("recordb.ingest.records", metric.WithDescription("records ingested"))
	if err != nil {
		panic(err)
	}
	bytes, err := m.Int64Counter("recordb.ingest.bytes", metric.WithDescription("bytes consumed by ingest"), metric.WithUnit("By"))
	if err != nil {
		panic(err)
	}
	return IngestCounters{Batches: batches, Records: records, Bytes: bytes}
}

// Add records one completed ingest batch.
func (c IngestCounters) Add(ctx context.Context, records, bytes int) {
	c.Batches.Add(ctx, 1)
	c.Records.Add(ctx, int64(records))
	c.Bytes.Add(ctx, int64(bytes))
}
