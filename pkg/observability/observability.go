// Package observability wraps the OpenTelemetry tracer/meter the engine
// instruments its HTTP handlers (pkg/httpapi) with: a request counter, an
// error counter, and a duration histogram, per the rate/errors/duration
// pattern of spec.md §6. The orchestration packages are not instrumented
// with it. It does not configure an exporter, and cmd/dispensed installs
// no global TracerProvider/MeterProvider, so the otel API's no-op
// implementations make every call here a harmless, zero-cost no-op unless
// the embedding process installs one.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Provider holds the tracer, meter, and RED metric instruments for one
// instrumentation scope (typically the engine's module path).
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	requestCounter metric.Int64Counter
	errorCounter   metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// New builds a Provider scoped to name (e.g. "dispense.httpapi",
// "dispense.prescription").
func New(name string) (*Provider, error) {
	p := &Provider{
		tracer: otel.Tracer(name),
		meter:  otel.Meter(name),
	}

	var err error
	p.requestCounter, err = p.meter.Int64Counter("dispense.requests.total",
		metric.WithDescription("Total number of operations processed"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: request counter: %w", err)
	}
	p.errorCounter, err = p.meter.Int64Counter("dispense.errors.total",
		metric.WithDescription("Total number of operations that returned an error"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: error counter: %w", err)
	}
	p.durationHist, err = p.meter.Float64Histogram("dispense.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: duration histogram: %w", err)
	}
	return p, nil
}

// Track starts a span named name and returns a func to call on completion,
// which records the span's error (if any), the RED counters, and ends the
// span.
func (p *Provider) Track(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))

	p.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	return ctx, func(err error) {
		p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		if err != nil {
			span.RecordError(err)
			errAttrs := append(append([]attribute.KeyValue{}, attrs...), attribute.String("error.type", fmt.Sprintf("%T", err)))
			p.errorCounter.Add(ctx, 1, metric.WithAttributes(errAttrs...))
		}
		span.End()
	}
}
