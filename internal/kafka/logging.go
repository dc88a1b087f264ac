package kafka

import (
	"context"
	"log/slog"

	"github.com/dejobratic/nooks/internal/orders/domain"
)

// LoggingEventBus logs events instead of sending them. Used when no brokers
// are configured.
type LoggingEventBus struct {
	logger *slog.Logger
}

func NewLoggingEventBus(logger *slog.Logger) *LoggingEventBus {
	return &LoggingEventBus{logger: logger}
}

func (b *LoggingEventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	b.logger.DebugContext(ctx, "event::order_placed", "order_id", order.ID, "total", order.Total.String())
	return nil
}

func (b *LoggingEventBus) PublishOrderCancelled(ctx context.Context, order domain.Order) error {
	b.logger.DebugContext(ctx, "event::order_cancelled", "order_id", order.ID, "cancelled_by", order.CancelledBy)
	return nil
}

func (b *LoggingEventBus) PublishOrderStatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	b.logger.DebugContext(ctx, "event::order_status_changed", "order_id", orderID, "from", from, "to", to)
	return nil
}
