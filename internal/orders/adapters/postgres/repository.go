package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const orderColumns = `
	id, status, order_type, customer, branch_id, branch_name, items,
	total_sar, delivery_fee, discount, COALESCE(promo_code, ''), delivery_address,
	COALESCE(payment_id, ''), COALESCE(pos_order_id, ''), demo_mode, COALESCE(oto_id, ''), shipment_pending,
	COALESCE(cancellation_reason, ''), COALESCE(cancelled_by, ''), refund_status, COALESCE(refund_id, ''),
	commission_amount, commission_rate, commission_status, created_at, updated_at`

// Repository stores orders in Postgres. Status changes are conditional
// updates keyed on the expected current status.
type Repository struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewRepository(pool *pgxpool.Pool, clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.Real()
	}
	return &Repository{pool: pool, clock: clk}
}

func (r *Repository) Create(ctx context.Context, order domain.Order) (bool, error) {
	query := `
		INSERT INTO orders (
			id, status, order_type, customer, customer_id, branch_id, branch_name, items,
			total_sar, delivery_fee, discount, promo_code, delivery_address,
			payment_id, pos_order_id, demo_mode, oto_id, shipment_pending, refund_status,
			commission_amount, commission_rate, commission_status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO NOTHING
	`

	refundStatus := order.RefundStatus
	if refundStatus == "" {
		refundStatus = domain.RefundNone
	}
	commissionStatus := order.CommissionStatus
	if commissionStatus == "" {
		commissionStatus = domain.CommissionPending
	}

	tag, err := r.pool.Exec(ctx, query,
		order.ID,
		order.Status,
		order.OrderType,
		order.Customer,
		order.Customer.ID,
		order.BranchID,
		order.BranchName,
		order.Items,
		order.Total,
		order.DeliveryFee,
		order.Discount,
		nullable(order.PromoCode),
		order.DeliveryAddress,
		nullable(order.PaymentID),
		nullable(order.POSOrderID),
		order.DemoMode,
		nullable(order.OtoID),
		order.ShipmentPending,
		refundStatus,
		order.CommissionAmount,
		order.CommissionRate,
		commissionStatus,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *Repository) GetByDispatchID(ctx context.Context, otoID string) (*domain.Order, error) {
	if otoID == "" {
		return nil, ports.ErrNotFound
	}
	query := `SELECT` + orderColumns + ` FROM orders WHERE oto_id = $1`
	return r.getOne(ctx, query, otoID)
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `SELECT` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3 = '' OR branch_id = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, query, statusFilter, filter.CustomerID, filter.BranchID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET status = $1,
		    commission_status = CASE WHEN $1 = 'Delivered' THEN 'settled' ELSE commission_status END,
		    updated_at = $2
		WHERE id = $3 AND status = $4
		RETURNING` + orderColumns

	return r.conditional(ctx, id, "update order status", query, to, r.clock.Now().UTC(), id, from)
}

func (r *Repository) Cancel(ctx context.Context, id string, c ports.Cancellation) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET status = 'Cancelled',
		    cancellation_reason = NULLIF($1, ''),
		    cancelled_by = NULLIF($2, ''),
		    refund_status = $3,
		    updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING` + orderColumns

	refundStatus := c.RefundStatus
	if refundStatus == "" {
		refundStatus = domain.RefundNone
	}

	return r.conditional(ctx, id, "cancel order", query,
		c.Reason, string(c.By), refundStatus, r.clock.Now().UTC(), id, c.From)
}

func (r *Repository) UpdateRefund(ctx context.Context, id string, status domain.RefundStatus, refundID string) error {
	query := `
		UPDATE orders
		SET refund_status = $1,
		    refund_id = COALESCE(NULLIF($2, ''), refund_id),
		    updated_at = $3
		WHERE id = $4
	`
	return r.exec(ctx, "update refund", query, status, refundID, r.clock.Now().UTC(), id)
}

func (r *Repository) SetDispatch(ctx context.Context, id, otoID string, shipmentPending bool) error {
	query := `UPDATE orders SET oto_id = $1, shipment_pending = $2, updated_at = $3 WHERE id = $4`
	return r.exec(ctx, "set dispatch", query, otoID, shipmentPending, r.clock.Now().UTC(), id)
}

func (r *Repository) SetPaymentID(ctx context.Context, id, paymentID string) error {
	query := `UPDATE orders SET payment_id = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, "set payment id", query, paymentID, r.clock.Now().UTC(), id)
}

func (r *Repository) RecordCommission(ctx context.Context, id string, amount, rate decimal.Decimal) (bool, error) {
	query := `
		UPDATE orders
		SET commission_amount = $1, commission_rate = $2, updated_at = $3
		WHERE id = $4 AND commission_amount IS NULL
	`

	tag, err := r.pool.Exec(ctx, query, amount, rate, r.clock.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("record commission: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.ensureExists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return &order, nil
}

// conditional runs an UPDATE ... RETURNING guarded by the current status.
// No returned row means either the order is missing or it moved on.
func (r *Repository) conditional(ctx context.Context, id, op, query string, args ...any) (*domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := r.ensureExists(ctx, id); err != nil {
		return nil, err
	}
	return nil, ports.ErrConflict
}

func (r *Repository) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *Repository) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ports.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order       domain.Order
		cancelledBy string
	)
	err := row.Scan(
		&order.ID,
		&order.Status,
		&order.OrderType,
		&order.Customer,
		&order.BranchID,
		&order.BranchName,
		&order.Items,
		&order.Total,
		&order.DeliveryFee,
		&order.Discount,
		&order.PromoCode,
		&order.DeliveryAddress,
		&order.PaymentID,
		&order.POSOrderID,
		&order.DemoMode,
		&order.OtoID,
		&order.ShipmentPending,
		&order.CancellationReason,
		&cancelledBy,
		&order.RefundStatus,
		&order.RefundID,
		&order.CommissionAmount,
		&order.CommissionRate,
		&order.CommissionStatus,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.CancelledBy = domain.CancelledBy(cancelledBy)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

var _ ports.OrderRepository = (*Repository)(nil)
