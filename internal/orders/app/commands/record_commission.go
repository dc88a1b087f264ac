package commands

import (
	"context"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/shopspring/decimal"
)

type RecordCommissionCommand struct {
	OrderID string
}

type RecordCommissionCommandHandler struct {
	repo ports.OrderRepository
	rate decimal.Decimal
}

func NewRecordCommissionCommandHandler(repo ports.OrderRepository, rate decimal.Decimal) *RecordCommissionCommandHandler {
	return &RecordCommissionCommandHandler{repo: repo, rate: rate}
}

// Handle stores the commission at the configured rate unless one is already
// stored, and returns the order as persisted.
func (h *RecordCommissionCommandHandler) Handle(ctx context.Context, cmd RecordCommissionCommand) (*domain.Order, error) {
	if err := requireOrderID(cmd.OrderID); err != nil {
		return nil, err
	}
	order, err := h.repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	amount, rate, stored := order.Commission(h.rate)
	if stored {
		return order, nil
	}

	recorded, err := h.repo.RecordCommission(ctx, order.ID, amount, rate)
	if err != nil {
		return nil, err
	}
	if !recorded {
		return h.repo.GetByID(ctx, order.ID)
	}
	order.CommissionAmount = decimal.NewNullDecimal(amount)
	order.CommissionRate = decimal.NewNullDecimal(rate)
	return order, nil
}
