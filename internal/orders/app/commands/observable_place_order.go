package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/metrics"
	"github.com/dejobratic/nooks/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservablePlaceOrderHandler struct {
	handler PlaceOrderHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservablePlaceOrderHandler(handler PlaceOrderHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservablePlaceOrderHandler {
	return &ObservablePlaceOrderHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservablePlaceOrderHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlaceOrderResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "PlaceOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	outcome := metrics.OutcomeError
	defer func() {
		o.metrics.RecordCheckout(ctx, outcome, time.Since(start).Seconds())
	}()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.branch_id", cmd.BranchID),
		attribute.String("order.type", string(cmd.OrderType)),
	)

	o.logger.InfoContext(ctx, "placing order",
		"order_id", cmd.OrderID,
		"branch_id", cmd.BranchID,
		"order_type", cmd.OrderType,
	)

	result, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		if isCheckoutRejection(err) {
			outcome = metrics.OutcomeRejected
			o.logger.WarnContext(ctx, "checkout rejected",
				"order_id", cmd.OrderID,
				"error", err,
			)
		} else {
			o.logger.ErrorContext(ctx, "failed to place order",
				"order_id", cmd.OrderID,
				"error", err,
			)
		}
		return nil, err
	}

	order := result.Order
	switch {
	case result.Duplicate:
		outcome = metrics.OutcomeDuplicate
	case order.DemoMode:
		outcome = metrics.OutcomeDemo
	default:
		outcome = metrics.OutcomePlaced
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.status", string(order.Status)),
		attribute.String("order.total", order.Total.String()),
		attribute.Bool("order.demo_mode", order.DemoMode),
		attribute.Bool("order.dispatched", order.OtoID != ""),
		attribute.Bool("checkout.duplicate", result.Duplicate),
	)

	o.logger.InfoContext(ctx, "order placed",
		"order_id", order.ID,
		"outcome", outcome,
		"pos_order_id", order.POSOrderID,
		"oto_id", order.OtoID,
	)

	telemetry.SetSpanSuccess(span)
	return result, nil
}

// isCheckoutRejection reports whether err is a user-facing refusal rather
// than an internal failure.
func isCheckoutRejection(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, delivery.ErrNotDeliverable) ||
		errors.Is(err, ErrCheckoutInProgress) ||
		errors.Is(err, ErrPaymentRequired) ||
		errors.Is(err, ErrPaymentDeclined) ||
		errors.Is(err, ErrPOSRejected)
}
