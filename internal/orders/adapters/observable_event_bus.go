package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/nooks/internal/kafka"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableEventBus wraps every publish in a span and records its outcome.
type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) publish(ctx context.Context, method, eventType string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus."+method)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("event.type", eventType))...)

	start := time.Now()
	err := fn(ctx)
	if e.metrics != nil {
		e.metrics.RecordPublish(ctx, eventType, time.Since(start), err)
	}

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.id", order.ID),
		attribute.String("order.type", string(order.OrderType)),
		attribute.String("branch.id", order.BranchID),
	}
	return e.publish(ctx, "PublishOrderPlaced", kafka.EventOrderPlaced, attrs, func(ctx context.Context) error {
		return e.bus.PublishOrderPlaced(ctx, order)
	})
}

func (e *ObservableEventBus) PublishOrderCancelled(ctx context.Context, order domain.Order) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.id", order.ID),
		attribute.String("cancelled_by", string(order.CancelledBy)),
	}
	return e.publish(ctx, "PublishOrderCancelled", kafka.EventOrderCancelled, attrs, func(ctx context.Context) error {
		return e.bus.PublishOrderCancelled(ctx, order)
	})
}

func (e *ObservableEventBus) PublishOrderStatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	attrs := []attribute.KeyValue{
		attribute.String("order.id", orderID),
		attribute.String("order.from_status", string(from)),
		attribute.String("order.new_status", string(to)),
	}
	return e.publish(ctx, "PublishOrderStatusChanged", kafka.EventOrderStatusChanged, attrs, func(ctx context.Context) error {
		return e.bus.PublishOrderStatusChanged(ctx, orderID, from, to)
	})
}

var _ ports.EventBus = (*ObservableEventBus)(nil)
