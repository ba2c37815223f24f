package observability

import (
	"context"
	"time"

	"rategate/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentedLimiter wraps a ratelimit.Limiter and records decision counts,
// check latency, registrations, removals, and the number of tracked entities.
// Keys are never used as metric attributes to keep cardinality bounded.
type InstrumentedLimiter[K comparable] struct {
	inner         ratelimit.Limiter[K]
	decisions     metric.Int64Counter
	registrations metric.Int64Counter
	removals      metric.Int64Counter
	duration      metric.Float64Histogram
}

var _ ratelimit.Limiter[string] = (*InstrumentedLimiter[string])(nil)

// NewInstrumentedLimiter creates the wrapper. A nil meter provider falls back
// to the global one.
func NewInstrumentedLimiter[K comparable](inner ratelimit.Limiter[K], mp metric.MeterProvider) (*InstrumentedLimiter[K], error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("rategate/ratelimit")

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Number of rate limit checks by decision"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	registrations, err := meter.Int64Counter(
		"ratelimit.registrations",
		metric.WithDescription("Number of entity registrations, including replacements"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, err
	}

	removals, err := meter.Int64Counter(
		"ratelimit.removals",
		metric.WithDescription("Number of entities removed"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"ratelimit.check.duration",
		metric.WithDescription("Duration of rate limit checks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"ratelimit.entities",
		metric.WithDescription("Number of registered entities"),
		metric.WithUnit("{entity}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(inner.Len()))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedLimiter[K]{
		inner:         inner,
		decisions:     decisions,
		registrations: registrations,
		removals:      removals,
		duration:      duration,
	}, nil
}

func (l *InstrumentedLimiter[K]) Register(key K, capacity uint, window time.Duration) {
	l.inner.Register(key, capacity, window)
	l.registrations.Add(context.Background(), 1)
}

func (l *InstrumentedLimiter[K]) CheckAndConsume(key K) ratelimit.Decision {
	start := time.Now()
	decision := l.inner.CheckAndConsume(key)
	elapsed := time.Since(start).Seconds()

	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("decision", decision.String()))
	l.decisions.Add(ctx, 1, attrs)
	l.duration.Record(ctx, elapsed, attrs)

	return decision
}

func (l *InstrumentedLimiter[K]) Unregister(key K) (ratelimit.Bucket, bool) {
	bucket, ok := l.inner.Unregister(key)
	if ok {
		l.removals.Add(context.Background(), 1)
	}
	return bucket, ok
}

func (l *InstrumentedLimiter[K]) RemainingQuota(key K) (uint, bool) {
	return l.inner.RemainingQuota(key)
}

func (l *InstrumentedLimiter[K]) Inspect(key K) (ratelimit.Bucket, bool) {
	return l.inner.Inspect(key)
}

func (l *InstrumentedLimiter[K]) Len() int {
	return l.inner.Len()
}
