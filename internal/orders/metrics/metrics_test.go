package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordCheckout(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordCheckout(ctx, OutcomePlaced, 0.4)
	metrics.RecordCheckout(ctx, OutcomePlaced, 0.6)
	metrics.RecordCheckout(ctx, OutcomeRejected, 0.1)

	got := collect(t, reader)

	sum, ok := got["checkouts_total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected checkouts_total Sum[int64], got %T", got["checkouts_total"].Data)
	}
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[outcome.AsString()] = dp.Value
	}
	if counts[OutcomePlaced] != 2 || counts[OutcomeRejected] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	if _, ok := got["checkout_duration_seconds"].Data.(metricdata.Histogram[float64]); !ok {
		t.Error("expected checkout_duration_seconds histogram")
	}
}

func TestRecordRefundAndTransition(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordRefund(ctx, "refunded")
	metrics.RecordRefund(ctx, "refund_failed")
	metrics.RecordTransition(ctx, "Preparing", "Ready")
	metrics.RecordDispatchFailure(ctx)

	got := collect(t, reader)
	for _, name := range []string{"refunds_total", "order_status_transitions_total", "dispatch_failures_total"} {
		if _, ok := got[name]; !ok {
			t.Errorf("%s metric not found", name)
		}
	}

	refunds := got["refunds_total"].Data.(metricdata.Sum[int64])
	if len(refunds.DataPoints) != 2 {
		t.Errorf("expected 2 refund data points, got %d", len(refunds.DataPoints))
	}
}
