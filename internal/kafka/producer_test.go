package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/shopspring/decimal"
	kafkago "github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestEventBusPublish(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	writer := &fakeWriter{}
	bus := NewEventBus(writer, Topics{Mirror: "mirror-topic"}, "nooks-api", clock.NewFake(now))

	order := domain.Order{
		ID:                 "order-1",
		Status:             domain.StatusCancelled,
		Total:              decimal.NewFromInt(115),
		CancellationReason: "out of stock",
		CancelledBy:        domain.CancelledByMerchant,
		RefundStatus:       domain.RefundRefunded,
	}

	ctx := context.Background()
	if err := bus.PublishOrderPlaced(ctx, order); err != nil {
		t.Fatalf("PublishOrderPlaced() failed: %v", err)
	}
	if err := bus.PublishOrderCancelled(ctx, order); err != nil {
		t.Fatalf("PublishOrderCancelled() failed: %v", err)
	}
	if err := bus.PublishOrderStatusChanged(ctx, "order-1", domain.StatusReady, domain.StatusDelivered); err != nil {
		t.Fatalf("PublishOrderStatusChanged() failed: %v", err)
	}

	if len(writer.messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(writer.messages))
	}

	wantTopics := []string{"mirror-topic", DefaultTopics.Cancelled, DefaultTopics.Status}
	for i, msg := range writer.messages {
		if msg.Topic != wantTopics[i] {
			t.Errorf("message %d: expected topic %s, got %s", i, wantTopics[i], msg.Topic)
		}
		if string(msg.Key) != "order-1" {
			t.Errorf("message %d: expected key order-1, got %s", i, msg.Key)
		}
	}

	var envelope Envelope
	if err := json.Unmarshal(writer.messages[1].Value, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.EventType != EventOrderCancelled || envelope.Producer != "nooks-api" || !envelope.OccurredAt.Equal(now) {
		t.Errorf("unexpected envelope %+v", envelope)
	}
	if envelope.EventID == "" {
		t.Error("expected event id")
	}

	var payload OrderCancelledPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Reason != "out of stock" || payload.RefundStatus != domain.RefundRefunded {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestEventBusWriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	bus := NewEventBus(&fakeWriter{err: boom}, Topics{}, "nooks-api", nil)

	err := bus.PublishOrderPlaced(context.Background(), domain.Order{ID: "order-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
