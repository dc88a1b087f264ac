package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	publishOK      = "ok"
	publishTimeout = "timeout"
	publishFailed  = "failed"
)

// Metrics tracks order event publishing, keyed by event type and outcome.
type Metrics struct {
	publishSeconds metric.Float64Histogram
	published      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	publishSeconds, err := meter.Float64Histogram(
		"order_event_publish_seconds",
		metric.WithDescription("Time to hand an order event to the broker"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_event_publish_seconds histogram: %w", err)
	}

	published, err := meter.Int64Counter(
		"order_events_published_total",
		metric.WithDescription("Order events handed to the broker"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_events_published_total counter: %w", err)
	}

	return &Metrics{publishSeconds: publishSeconds, published: published}, nil
}

// RecordPublish records one publish attempt. A deadline hit while waiting
// for broker acks is reported separately from other failures.
func (m *Metrics) RecordPublish(ctx context.Context, eventType string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", publishOutcome(err)),
	)
	m.publishSeconds.Record(ctx, elapsed.Seconds(), attrs)
	m.published.Add(ctx, 1, attrs)
}

func publishOutcome(err error) string {
	switch {
	case err == nil:
		return publishOK
	case errors.Is(err, context.DeadlineExceeded):
		return publishTimeout
	default:
		return publishFailed
	}
}
