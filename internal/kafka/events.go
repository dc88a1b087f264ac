package kafka

import (
	"encoding/json"
	"time"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "order.placed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderStatusChanged = "order.status_changed"
)

// Topics names the topic for each event family.
type Topics struct {
	Mirror    string
	Cancelled string
	Status    string
}

// DefaultTopics are used when configuration leaves a topic empty.
var DefaultTopics = Topics{
	Mirror:    "orders.mirror",
	Cancelled: "orders.cancelled",
	Status:    "orders.status",
}

func (t Topics) withDefaults() Topics {
	if t.Mirror == "" {
		t.Mirror = DefaultTopics.Mirror
	}
	if t.Cancelled == "" {
		t.Cancelled = DefaultTopics.Cancelled
	}
	if t.Status == "" {
		t.Status = DefaultTopics.Status
	}
	return t
}

// Envelope wraps every payload published by the gateway.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderPlacedPayload mirrors a placed order to downstream consumers.
type OrderPlacedPayload struct {
	Order domain.Order `json:"order"`
}

type OrderCancelledPayload struct {
	OrderID      string              `json:"order_id"`
	Reason       string              `json:"reason"`
	CancelledBy  domain.CancelledBy  `json:"cancelled_by"`
	RefundStatus domain.RefundStatus `json:"refund_status"`
	Total        decimal.Decimal     `json:"total"`
}

type OrderStatusChangedPayload struct {
	OrderID string             `json:"order_id"`
	From    domain.OrderStatus `json:"from"`
	To      domain.OrderStatus `json:"to"`
}

// PartitionKey keeps all events of one order on one partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
