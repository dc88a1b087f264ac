package ports

import (
	"context"

	"github.com/dejobratic/nooks/internal/orders/domain"
)

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	PublishOrderPlaced(ctx context.Context, order domain.Order) error
	PublishOrderCancelled(ctx context.Context, order domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error
}
