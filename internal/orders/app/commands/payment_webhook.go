package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
)

// PaymentWebhookCommand is a raw provider callback.
type PaymentWebhookCommand struct {
	Header http.Header
	Body   []byte
}

type PaymentWebhookCommandHandler struct {
	payments ports.PaymentGateway
	sessions ports.PaymentSessionRepository
	repo     ports.OrderRepository
	logger   *slog.Logger
}

func NewPaymentWebhookCommandHandler(
	payments ports.PaymentGateway,
	sessions ports.PaymentSessionRepository,
	repo ports.OrderRepository,
	logger *slog.Logger,
) *PaymentWebhookCommandHandler {
	return &PaymentWebhookCommandHandler{
		payments: payments,
		sessions: sessions,
		repo:     repo,
		logger:   logger,
	}
}

// Handle verifies the callback and applies paid, failed and refunded
// outcomes to the payment session and, when it exists, the order. Callbacks
// for unknown payments or orders are no-ops.
func (h *PaymentWebhookCommandHandler) Handle(ctx context.Context, cmd PaymentWebhookCommand) (payment.WebhookEvent, error) {
	event, err := h.payments.ParseWebhook(cmd.Header, cmd.Body)
	if err != nil {
		return payment.WebhookEvent{}, err
	}
	if event.PaymentID == "" {
		return event, nil
	}

	switch event.Status {
	case payment.StatusPaid, payment.StatusFailed, payment.StatusRefunded:
	default:
		return event, nil
	}

	if err := h.sessions.UpdateStatus(ctx, event.PaymentID, event.Status); err != nil && !errors.Is(err, ports.ErrSessionNotFound) {
		return event, fmt.Errorf("update payment session: %w", err)
	}

	orderID := event.OrderID
	if orderID == "" {
		session, err := h.sessions.GetByPaymentID(ctx, event.PaymentID)
		if errors.Is(err, ports.ErrSessionNotFound) {
			return event, nil
		}
		if err != nil {
			return event, err
		}
		orderID = session.OrderID
	}

	order, err := h.repo.GetByID(ctx, orderID)
	if errors.Is(err, ports.ErrNotFound) {
		// Checkout has not persisted the order yet; it verifies payment itself.
		return event, nil
	}
	if err != nil {
		return event, err
	}

	switch event.Status {
	case payment.StatusPaid:
		if order.PaymentID == "" {
			err = h.repo.SetPaymentID(ctx, order.ID, event.PaymentID)
		}
	case payment.StatusRefunded:
		if order.RefundStatus != domain.RefundRefunded {
			err = h.repo.UpdateRefund(ctx, order.ID, domain.RefundRefunded, order.RefundID)
		}
	case payment.StatusFailed:
		h.logger.WarnContext(ctx, "payment failed for placed order",
			"order_id", order.ID,
			"payment_id", event.PaymentID,
		)
	}
	if err != nil {
		return event, fmt.Errorf("apply payment webhook: %w", err)
	}
	return event, nil
}
