package queries

import (
	"context"
	"fmt"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/shopspring/decimal"
)

// CommissionView is the platform commission of one order. Stored is false
// when no value was recorded and the amount was computed at the current rate.
type CommissionView struct {
	OrderID string
	Amount  decimal.Decimal
	Rate    decimal.Decimal
	Status  domain.CommissionStatus
	Stored  bool
}

// NewCommissionView reports the stored commission of order, or computes it at rate.
func NewCommissionView(order domain.Order, rate decimal.Decimal) CommissionView {
	amount, applied, stored := order.Commission(rate)
	status := order.CommissionStatus
	if status == "" {
		status = domain.CommissionPending
	}
	return CommissionView{
		OrderID: order.ID,
		Amount:  amount,
		Rate:    applied,
		Status:  status,
		Stored:  stored,
	}
}

type GetCommissionQuery struct {
	OrderID string
}

type GetCommissionQueryHandler struct {
	repo ports.OrderRepository
	rate decimal.Decimal
}

func NewGetCommissionQueryHandler(repo ports.OrderRepository, rate decimal.Decimal) *GetCommissionQueryHandler {
	return &GetCommissionQueryHandler{repo: repo, rate: rate}
}

func (h *GetCommissionQueryHandler) Handle(ctx context.Context, query GetCommissionQuery) (*CommissionView, error) {
	if err := requireOrderID(query.OrderID); err != nil {
		return nil, err
	}
	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}
	view := NewCommissionView(*order, h.rate)
	return &view, nil
}

// CalculateCommissionQuery previews the commission for an amount that has not
// been ordered yet.
type CalculateCommissionQuery struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
}

type CalculateCommissionQueryHandler struct {
	rate decimal.Decimal
}

func NewCalculateCommissionQueryHandler(rate decimal.Decimal) *CalculateCommissionQueryHandler {
	return &CalculateCommissionQueryHandler{rate: rate}
}

func (h *CalculateCommissionQueryHandler) Handle(_ context.Context, query CalculateCommissionQuery) (*CommissionView, error) {
	if query.Subtotal.IsNegative() || query.DeliveryFee.IsNegative() {
		return nil, fmt.Errorf("%w: amounts must not be negative", domain.ErrValidation)
	}
	return &CommissionView{
		Amount: pricing.Commission(query.Subtotal, query.DeliveryFee, h.rate),
		Rate:   h.rate,
		Status: domain.CommissionPending,
	}, nil
}
