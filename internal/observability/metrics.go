// Package observability records compile-pipeline metrics and traces through
// the OpenTelemetry APIs. Exporter and provider wiring belongs to the host;
// with no SDK installed every call here is a no-op.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "grasql"

// Metrics holds the compile-pipeline instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	parseCacheHits     metric.Int64Counter
	parseCacheMisses   metric.Int64Counter
	resolveCacheHits   metric.Int64Counter
	resolveCacheMisses metric.Int64Counter
	sharedFlights      metric.Int64Counter
	resolverCalls      metric.Int64Counter
	resolverFailures   metric.Int64Counter
}

// NewMetrics creates the instrument set from the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(scopeName)

	parseHits, err := meter.Int64Counter(
		"grasql.parse_cache.hits",
		metric.WithDescription("Parse cache lookups served without re-parsing"),
	)
	if err != nil {
		return nil, err
	}
	parseMisses, err := meter.Int64Counter(
		"grasql.parse_cache.misses",
		metric.WithDescription("Parse cache lookups that required a parse"),
	)
	if err != nil {
		return nil, err
	}
	resolveHits, err := meter.Int64Counter(
		"grasql.resolve_cache.hits",
		metric.WithDescription("Schema lookups served from cache"),
	)
	if err != nil {
		return nil, err
	}
	resolveMisses, err := meter.Int64Counter(
		"grasql.resolve_cache.misses",
		metric.WithDescription("Schema lookups that invoked the host resolver"),
	)
	if err != nil {
		return nil, err
	}
	shared, err := meter.Int64Counter(
		"grasql.singleflight.shared",
		metric.WithDescription("Callers that waited on another caller's in-flight work"),
	)
	if err != nil {
		return nil, err
	}
	calls, err := meter.Int64Counter(
		"grasql.resolver.calls",
		metric.WithDescription("Host resolver invocations by operation"),
	)
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter(
		"grasql.resolver.failures",
		metric.WithDescription("Host resolver invocations that returned an error or panicked"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		parseCacheHits:     parseHits,
		parseCacheMisses:   parseMisses,
		resolveCacheHits:   resolveHits,
		resolveCacheMisses: resolveMisses,
		sharedFlights:      shared,
		resolverCalls:      calls,
		resolverFailures:   failures,
	}, nil
}

// ParseCacheLookup records one parse cache lookup outcome.
func (m *Metrics) ParseCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.parseCacheHits.Add(ctx, 1)
	} else {
		m.parseCacheMisses.Add(ctx, 1)
	}
}

// ResolveCacheLookup records one resolution cache lookup outcome.
func (m *Metrics) ResolveCacheLookup(ctx context.Context, kind string, hit bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("grasql.lookup.kind", kind))
	if hit {
		m.resolveCacheHits.Add(ctx, 1, attrs)
	} else {
		m.resolveCacheMisses.Add(ctx, 1, attrs)
	}
}

// SharedFlight records a caller that piggybacked on in-flight work.
func (m *Metrics) SharedFlight(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.sharedFlights.Add(ctx, 1, metric.WithAttributes(attribute.String("grasql.lookup.kind", kind)))
}

// ResolverCall records one host resolver invocation.
func (m *Metrics) ResolverCall(ctx context.Context, op string, failed bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("grasql.resolver.op", op))
	m.resolverCalls.Add(ctx, 1, attrs)
	if failed {
		m.resolverFailures.Add(ctx, 1, attrs)
	}
}

// StartSpan opens a pipeline-stage span on the global tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(scopeName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// FinishSpan closes a pipeline-stage span, recording err when present.
func FinishSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
