package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/telemetry"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the bus needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// EventBus publishes order events to Kafka as JSON envelopes keyed by order id.
type EventBus struct {
	writer   messageWriter
	topics   Topics
	producer string
	clock    clock.Clock
}

// NewWriter builds a synchronous writer that routes by message topic.
func NewWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

func NewEventBus(writer messageWriter, topics Topics, producer string, clk clock.Clock) *EventBus {
	if clk == nil {
		clk = clock.Real()
	}
	return &EventBus{
		writer:   writer,
		topics:   topics.withDefaults(),
		producer: producer,
		clock:    clk,
	}
}

func (b *EventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	return b.publish(ctx, b.topics.Mirror, EventOrderPlaced, order.ID, OrderPlacedPayload{Order: order})
}

func (b *EventBus) PublishOrderCancelled(ctx context.Context, order domain.Order) error {
	return b.publish(ctx, b.topics.Cancelled, EventOrderCancelled, order.ID, OrderCancelledPayload{
		OrderID:      order.ID,
		Reason:       order.CancellationReason,
		CancelledBy:  order.CancelledBy,
		RefundStatus: order.RefundStatus,
		Total:        order.Total,
	})
}

func (b *EventBus) PublishOrderStatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	return b.publish(ctx, b.topics.Status, EventOrderStatusChanged, orderID, OrderStatusChangedPayload{
		OrderID: orderID,
		From:    from,
		To:      to,
	})
}

// Close flushes pending writes.
func (b *EventBus) Close() error {
	return b.writer.Close()
}

func (b *EventBus) publish(ctx context.Context, topic, eventType, orderID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	envelope := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    b.clock.Now(),
		Producer:      b.producer,
		TraceID:       telemetry.TraceID(ctx),
		CorrelationID: orderID,
		Payload:       raw,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", eventType, err)
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   PartitionKey(orderID),
		Value: value,
		Time:  envelope.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", eventType, topic, err)
	}
	return nil
}
