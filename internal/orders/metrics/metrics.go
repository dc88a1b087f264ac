package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Checkout outcomes.
const (
	OutcomePlaced    = "placed"
	OutcomeDemo      = "placed_demo"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

type Metrics struct {
	checkoutsTotal    metric.Int64Counter
	checkoutDuration  metric.Float64Histogram
	refundsTotal      metric.Int64Counter
	transitionsTotal  metric.Int64Counter
	dispatchFailTotal metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.checkoutsTotal, err = meter.Int64Counter(
		"checkouts_total",
		metric.WithDescription("Checkout finalisations by outcome"),
		metric.WithUnit("{checkout}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkouts_total counter: %w", err)
	}

	m.checkoutDuration, err = meter.Float64Histogram(
		"checkout_duration_seconds",
		metric.WithDescription("Duration of checkout orchestration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout_duration histogram: %w", err)
	}

	m.refundsTotal, err = meter.Int64Counter(
		"refunds_total",
		metric.WithDescription("Refund attempts after cancellation by resulting refund status"),
		metric.WithUnit("{refund}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create refunds_total counter: %w", err)
	}

	m.transitionsTotal, err = meter.Int64Counter(
		"order_status_transitions_total",
		metric.WithDescription("Applied order status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_status_transitions_total counter: %w", err)
	}

	m.dispatchFailTotal, err = meter.Int64Counter(
		"dispatch_failures_total",
		metric.WithDescription("Courier dispatch requests that failed after checkout"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dispatch_failures_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordCheckout(ctx context.Context, outcome string, durationSeconds float64) {
	m.checkoutsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.checkoutDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordRefund(ctx context.Context, status string) {
	m.refundsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *Metrics) RecordDispatchFailure(ctx context.Context) {
	m.dispatchFailTotal.Add(ctx, 1)
}
