package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when a conditional update finds the order in a
	// different state than the caller expected.
	ErrConflict = errors.New("order was modified concurrently")
)

// Cancellation describes a conditional transition to Cancelled. The update
// only applies while the order is still in status From.
type Cancellation struct {
	From         domain.OrderStatus
	Reason       string
	By           domain.CancelledBy
	RefundStatus domain.RefundStatus
}

// OrderRepository exposes persistence operations required by the application layer.
type OrderRepository interface {
	// Create inserts order unless one with the same id exists. created is
	// false when the id was already present.
	Create(ctx context.Context, order domain.Order) (created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByDispatchID(ctx context.Context, otoID string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// UpdateStatus moves the order from -> to and returns the stored result.
	// Reaching Delivered settles the commission.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
	Cancel(ctx context.Context, id string, cancellation Cancellation) (*domain.Order, error)
	UpdateRefund(ctx context.Context, id string, status domain.RefundStatus, refundID string) error
	// SetDispatch records the courier order id. shipmentPending is true while
	// the shipment booking still has to be retried.
	SetDispatch(ctx context.Context, id, otoID string, shipmentPending bool) error
	SetPaymentID(ctx context.Context, id, paymentID string) error
	// RecordCommission stores amount and rate only when no commission has been
	// stored yet. recorded is false when an earlier value was kept.
	RecordCommission(ctx context.Context, id string, amount, rate decimal.Decimal) (recorded bool, err error)
}

// ListFilter narrows list queries by status, customer, branch and pagination.
type ListFilter struct {
	Status     *domain.OrderStatus
	CustomerID string
	BranchID   string
	Page       int
	PageSize   int
}
