package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/nooks/internal/database"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ObservableRepository traces every repository call and records its latency.
type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

// observe wraps fn in a span named OrderRepository.<method>. Conflicts and
// misses are expected outcomes and do not mark the span as failed.
func (r *ObservableRepository) observe(ctx context.Context, method, operation string, attrs []attribute.KeyValue, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository."+method)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	outcome := database.OutcomeOK
	switch {
	case err == nil:
		telemetry.SetSpanSuccess(span)
	case errors.Is(err, ports.ErrConflict):
		outcome = database.OutcomeConflict
	case errors.Is(err, ports.ErrNotFound):
		outcome = database.OutcomeNotFound
	default:
		outcome = database.OutcomeError
		telemetry.RecordSpanError(span, err)
	}
	if outcome != database.OutcomeOK {
		telemetry.AddSpanAttributes(span, attribute.String("result", outcome))
	}
	if r.metrics != nil {
		r.metrics.RecordQuery(ctx, operation, outcome, elapsed)
	}
	return err
}

func orderAttr(id string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("order.id", id)}
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) (bool, error) {
	var created bool
	err := r.observe(ctx, "Create", "create_order", orderAttr(order.ID), func(ctx context.Context) error {
		var err error
		created, err = r.repo.Create(ctx, order)
		return err
	})
	return created, err
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	var order *domain.Order
	err := r.observe(ctx, "GetByID", "get_order_by_id", orderAttr(id), func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByID(ctx, id)
		return err
	})
	return order, err
}

func (r *ObservableRepository) GetByDispatchID(ctx context.Context, otoID string) (*domain.Order, error) {
	var order *domain.Order
	attrs := []attribute.KeyValue{attribute.String("dispatch.id", otoID)}
	err := r.observe(ctx, "GetByDispatchID", "get_order_by_dispatch_id", attrs, func(ctx context.Context) error {
		var err error
		order, err = r.repo.GetByDispatchID(ctx, otoID)
		return err
	})
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	if filter.BranchID != "" {
		attrs = append(attrs, attribute.String("filter.branch_id", filter.BranchID))
	}

	var orders []domain.Order
	err := r.observe(ctx, "List", "list_orders", attrs, func(ctx context.Context) error {
		var err error
		orders, err = r.repo.List(ctx, filter)
		if err == nil {
			telemetry.AddSpanAttributes(trace.SpanFromContext(ctx), attribute.Int("result.count", len(orders)))
		}
		return err
	})
	return orders, err
}

func (r *ObservableRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	attrs := append(orderAttr(id),
		attribute.String("order.from_status", string(from)),
		attribute.String("order.new_status", string(to)),
	)

	var order *domain.Order
	err := r.observe(ctx, "UpdateStatus", "update_order_status", attrs, func(ctx context.Context) error {
		var err error
		order, err = r.repo.UpdateStatus(ctx, id, from, to)
		return err
	})
	return order, err
}

func (r *ObservableRepository) Cancel(ctx context.Context, id string, c ports.Cancellation) (*domain.Order, error) {
	attrs := append(orderAttr(id),
		attribute.String("order.from_status", string(c.From)),
		attribute.String("cancelled_by", string(c.By)),
	)

	var order *domain.Order
	err := r.observe(ctx, "Cancel", "cancel_order", attrs, func(ctx context.Context) error {
		var err error
		order, err = r.repo.Cancel(ctx, id, c)
		return err
	})
	return order, err
}

func (r *ObservableRepository) UpdateRefund(ctx context.Context, id string, status domain.RefundStatus, refundID string) error {
	attrs := append(orderAttr(id), attribute.String("refund.status", string(status)))
	return r.observe(ctx, "UpdateRefund", "update_refund", attrs, func(ctx context.Context) error {
		return r.repo.UpdateRefund(ctx, id, status, refundID)
	})
}

func (r *ObservableRepository) SetDispatch(ctx context.Context, id, otoID string, shipmentPending bool) error {
	attrs := append(orderAttr(id),
		attribute.String("dispatch.id", otoID),
		attribute.Bool("dispatch.shipment_pending", shipmentPending),
	)
	return r.observe(ctx, "SetDispatch", "set_dispatch", attrs, func(ctx context.Context) error {
		return r.repo.SetDispatch(ctx, id, otoID, shipmentPending)
	})
}

func (r *ObservableRepository) SetPaymentID(ctx context.Context, id, paymentID string) error {
	return r.observe(ctx, "SetPaymentID", "set_payment_id", orderAttr(id), func(ctx context.Context) error {
		return r.repo.SetPaymentID(ctx, id, paymentID)
	})
}

func (r *ObservableRepository) RecordCommission(ctx context.Context, id string, amount, rate decimal.Decimal) (bool, error) {
	attrs := append(orderAttr(id), attribute.String("commission.amount", amount.StringFixed(2)))

	var recorded bool
	err := r.observe(ctx, "RecordCommission", "record_commission", attrs, func(ctx context.Context) error {
		var err error
		recorded, err = r.repo.RecordCommission(ctx, id, amount, rate)
		return err
	})
	return recorded, err
}

var _ ports.OrderRepository = (*ObservableRepository)(nil)
