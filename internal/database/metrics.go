package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query outcomes. Conflicts and misses are normal results of conditional
// updates and are kept apart from failures.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type Metrics struct {
	queryDuration metric.Float64Histogram
	meter         metric.Meter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	queryDuration, err := meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	return &Metrics{queryDuration: queryDuration, meter: meter}, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, operation, outcome string, durationSeconds float64) {
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// ObservePool reports pool connection counts as db_pool_connections{state}.
func (m *Metrics) ObservePool(pool *pgxpool.Pool) error {
	gauge, err := m.meter.Int64ObservableGauge(
		"db_pool_connections",
		metric.WithDescription("Connections in the pgx pool by state"),
	)
	if err != nil {
		return fmt.Errorf("create db_pool_connections gauge: %w", err)
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(gauge, int64(stat.AcquiredConns()), metric.WithAttributes(attribute.String("state", "acquired")))
		o.ObserveInt64(gauge, int64(stat.IdleConns()), metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(gauge, int64(stat.TotalConns()), metric.WithAttributes(attribute.String("state", "total")))
		return nil
	}, gauge)
	if err != nil {
		return fmt.Errorf("register pool callback: %w", err)
	}
	return nil
}
