package http

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics covers the order API surface. Requests are keyed by chi route
// pattern and status class so webhook retries and polling stay low-cardinality.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	duration, err := meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("Order API request duration by route"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_request_duration_seconds histogram: %w", err)
	}

	requests, err := meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Order API requests by route and status class"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_total counter: %w", err)
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Order API requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create http_requests_in_flight counter: %w", err)
	}

	return &Metrics{duration: duration, requests: requests, inFlight: inFlight}, nil
}

// Begin marks a request as in flight and returns the func that completes it.
func (m *Metrics) Begin(ctx context.Context, method string) func(route string, status int) {
	start := time.Now()
	methodAttr := attribute.String("method", method)
	m.inFlight.Add(ctx, 1, metric.WithAttributes(methodAttr))

	return func(route string, status int) {
		m.inFlight.Add(ctx, -1, metric.WithAttributes(methodAttr))
		attrs := metric.WithAttributes(
			methodAttr,
			attribute.String("route", route),
			attribute.String("status_class", statusClass(status)),
		)
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
