package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
)

// Lifecycle bundles what the post-checkout status commands share.
type Lifecycle struct {
	Repo     ports.OrderRepository
	Events   ports.EventBus
	Effects  ports.SideEffects
	Payments ports.PaymentGateway
	Delivery ports.DeliveryGateway
	Clock    clock.Clock
	Logger   *slog.Logger

	// OnTransition and OnRefund observe outcomes. Both are optional.
	OnTransition func(ctx context.Context, from, to domain.OrderStatus)
	OnRefund     func(ctx context.Context, status domain.RefundStatus)
}

func (l Lifecycle) now() time.Time {
	if l.Clock == nil {
		return clock.Real().Now()
	}
	return l.Clock.Now()
}

// announce records the transition and publishes it without blocking the caller.
func (l Lifecycle) announce(ctx context.Context, id string, from, to domain.OrderStatus) {
	if l.OnTransition != nil {
		l.OnTransition(ctx, from, to)
	}
	l.Effects.Submit(ctx, "status_event", func(ctx context.Context) error {
		return l.Events.PublishOrderStatusChanged(ctx, id, from, to)
	})
}

// refund returns the paid amount for a cancelled order. Failures never undo
// the cancellation; they are recorded on the order instead.
func (l Lifecycle) refund(ctx context.Context, order domain.Order) (domain.RefundStatus, string) {
	if order.PaymentID == "" {
		return domain.RefundNone, ""
	}

	var status domain.RefundStatus
	var refundID string
	refund, err := l.Payments.Refund(ctx, order.PaymentID, order.Total)
	switch {
	case err == nil:
		status, refundID = domain.RefundRefunded, refund.ID
	case errors.Is(err, payment.ErrNotConfigured), errors.Is(err, payment.ErrNoCapturedPayment):
		status = domain.RefundPendingManual
		l.Logger.WarnContext(ctx, "refund needs manual handling",
			"order_id", order.ID,
			"payment_id", order.PaymentID,
			"error", err,
		)
	default:
		status = domain.RefundFailed
		l.Logger.ErrorContext(ctx, "refund failed",
			"order_id", order.ID,
			"payment_id", order.PaymentID,
			"error", err,
		)
	}

	if err := l.Repo.UpdateRefund(ctx, order.ID, status, refundID); err != nil {
		l.Logger.ErrorContext(ctx, "failed to record refund outcome",
			"order_id", order.ID,
			"refund_status", status,
			"error", err,
		)
	}
	if l.OnRefund != nil {
		l.OnRefund(ctx, status)
	}
	return status, refundID
}

// afterCancel releases the courier and publishes the cancellation.
func (l Lifecycle) afterCancel(ctx context.Context, order domain.Order, from domain.OrderStatus) {
	if l.OnTransition != nil {
		l.OnTransition(ctx, from, domain.StatusCancelled)
	}
	if order.OtoID != "" {
		l.Effects.Submit(ctx, "dispatch_cancel", func(ctx context.Context) error {
			return l.Delivery.CancelOrder(ctx, order.ID)
		})
	}
	l.Effects.Submit(ctx, "cancel_event", func(ctx context.Context) error {
		return l.Events.PublishOrderCancelled(ctx, order)
	})
}
