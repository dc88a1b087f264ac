package sideeffects

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
	statusDropped = "dropped"
)

type Metrics struct {
	tasksTotal    metric.Int64Counter
	failuresTotal metric.Int64Counter
	taskDuration  metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.tasksTotal, err = meter.Int64Counter(
		"side_effects_total",
		metric.WithDescription("Best-effort side effects by task and outcome"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create side_effects_total counter: %w", err)
	}

	m.failuresTotal, err = meter.Int64Counter(
		"side_effect_failures_total",
		metric.WithDescription("Failed or dropped best-effort side effects"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create side_effect_failures_total counter: %w", err)
	}

	m.taskDuration, err = meter.Float64Histogram(
		"side_effect_duration_seconds",
		metric.WithDescription("Side effect execution time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create side_effect_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordTask(ctx context.Context, task, status string, durationSeconds float64) {
	m.tasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("status", status),
	))
	if status != statusSuccess {
		m.failuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("task", task)))
	}
	if status != statusDropped {
		m.taskDuration.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("task", task)))
	}
}
