package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordPublish(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()
	metrics.RecordPublish(ctx, EventOrderPlaced, 20*time.Millisecond, nil)
	metrics.RecordPublish(ctx, EventOrderPlaced, 5*time.Second, fmt.Errorf("write: %w", context.DeadlineExceeded))
	metrics.RecordPublish(ctx, EventOrderCancelled, time.Millisecond, errors.New("leader not available"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "order_events_published_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				event, _ := dp.Attributes.Value("event_type")
				outcome, _ := dp.Attributes.Value("outcome")
				outcomes[event.AsString()+"/"+outcome.AsString()] += dp.Value
			}
		}
	}

	want := map[string]int64{
		EventOrderPlaced + "/" + publishOK:        1,
		EventOrderPlaced + "/" + publishTimeout:   1,
		EventOrderCancelled + "/" + publishFailed: 1,
	}
	for key, count := range want {
		if outcomes[key] != count {
			t.Errorf("%s = %d, want %d (all: %v)", key, outcomes[key], count, outcomes)
		}
	}
}
