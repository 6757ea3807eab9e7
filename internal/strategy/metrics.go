package strategy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/classifyd/internal/strategy"

// Metrics holds classification instruments. Instrument creation failures
// leave the field nil and recording becomes a no-op.
type Metrics struct {
	meter    metric.Meter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates a Metrics instance for strategies.
func NewMetrics() *Metrics {
	m := &Metrics{meter: otel.Meter(instrumentationName)}
	m.duration, _ = m.meter.Float64Histogram(
		"classifyd.classification.duration_seconds",
		metric.WithDescription("Duration of classification calls in seconds, labeled by model and strategy"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	m.errors, _ = m.meter.Int64Counter(
		"classifyd.classification.errors_total",
		metric.WithDescription("Total classification errors by model and strategy"),
		metric.WithUnit("{error}"),
	)
	return m
}

// RecordClassification records one classification call.
func (m *Metrics) RecordClassification(ctx context.Context, model string, typ Type, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("strategy", string(typ)),
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
