package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// Repository provides an in-memory store useful for local development and tests.
// Conditional updates are applied under one lock, matching the Postgres
// repository's compare-and-set semantics.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	clock  clock.Clock
}

func NewRepository(clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.Real()
	}
	return &Repository{orders: make(map[string]domain.Order), clock: clk}
}

func (r *Repository) Create(_ context.Context, order domain.Order) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return false, nil
	}
	r.orders[order.ID] = cloneOrder(order)
	return true, nil
}

func (r *Repository) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	found := cloneOrder(order)
	return &found, nil
}

func (r *Repository) GetByDispatchID(_ context.Context, otoID string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, order := range r.orders {
		if otoID != "" && order.OtoID == otoID {
			found := cloneOrder(order)
			return &found, nil
		}
	}
	return nil, ports.ErrNotFound
}

// List returns orders newest first. Pagination is 1-based.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.CustomerID != "" && order.Customer.ID != filter.CustomerID {
			continue
		}
		if filter.BranchID != "" && order.BranchID != filter.BranchID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	slices.SortFunc(result, func(a, b domain.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	page := max(filter.Page, 1)
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}
	end := min(start+pageSize, len(result))
	return result[start:end], nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if order.Status != from {
			return ports.ErrConflict
		}
		order.Status = to
		if to == domain.StatusDelivered {
			order.CommissionStatus = domain.CommissionSettled
		}
		return nil
	})
}

func (r *Repository) Cancel(_ context.Context, id string, c ports.Cancellation) (*domain.Order, error) {
	return r.mutate(id, func(order *domain.Order) error {
		if order.Status != c.From {
			return ports.ErrConflict
		}
		order.Status = domain.StatusCancelled
		order.CancellationReason = c.Reason
		order.CancelledBy = c.By
		order.RefundStatus = c.RefundStatus
		return nil
	})
}

// UpdateRefund records a refund outcome. An empty refundID keeps the stored one.
func (r *Repository) UpdateRefund(_ context.Context, id string, status domain.RefundStatus, refundID string) error {
	_, err := r.mutate(id, func(order *domain.Order) error {
		order.RefundStatus = status
		if refundID != "" {
			order.RefundID = refundID
		}
		return nil
	})
	return err
}

func (r *Repository) SetDispatch(_ context.Context, id, otoID string, shipmentPending bool) error {
	_, err := r.mutate(id, func(order *domain.Order) error {
		order.OtoID = otoID
		order.ShipmentPending = shipmentPending
		return nil
	})
	return err
}

func (r *Repository) SetPaymentID(_ context.Context, id, paymentID string) error {
	_, err := r.mutate(id, func(order *domain.Order) error {
		order.PaymentID = paymentID
		return nil
	})
	return err
}

func (r *Repository) RecordCommission(_ context.Context, id string, amount, rate decimal.Decimal) (bool, error) {
	recorded := false
	_, err := r.mutate(id, func(order *domain.Order) error {
		if order.CommissionAmount.Valid {
			return nil
		}
		order.CommissionAmount = decimal.NewNullDecimal(amount)
		order.CommissionRate = decimal.NewNullDecimal(rate)
		recorded = true
		return nil
	})
	return recorded, err
}

func (r *Repository) mutate(id string, apply func(order *domain.Order) error) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if err := apply(&order); err != nil {
		return nil, err
	}
	order.UpdatedAt = r.clock.Now().UTC()
	r.orders[id] = order

	updated := cloneOrder(order)
	return &updated, nil
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	if order.DeliveryAddress != nil {
		addr := *order.DeliveryAddress
		order.DeliveryAddress = &addr
	}
	return order
}

var _ ports.OrderRepository = (*Repository)(nil)
