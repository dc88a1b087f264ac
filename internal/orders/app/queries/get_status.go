package queries

import (
	"context"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

type GetStatusQuery struct {
	OrderID string
}

// StatusView is what the customer app polls after checkout. The windows are
// evaluated against the server clock at read time.
type StatusView struct {
	OrderID             string
	Status              domain.OrderStatus
	OrderType           domain.OrderType
	CanHold             bool
	CanCustomerCancel   bool
	CancelTimeRemaining time.Duration
	RefundStatus        domain.RefundStatus
	OtoID               string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type GetStatusQueryHandler struct {
	repo  ports.OrderRepository
	clock clock.Clock
}

func NewGetStatusQueryHandler(repo ports.OrderRepository, clk clock.Clock) *GetStatusQueryHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &GetStatusQueryHandler{repo: repo, clock: clk}
}

func (h *GetStatusQueryHandler) Handle(ctx context.Context, query GetStatusQuery) (*StatusView, error) {
	if err := requireOrderID(query.OrderID); err != nil {
		return nil, err
	}
	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	return &StatusView{
		OrderID:             order.ID,
		Status:              order.Status,
		OrderType:           order.OrderType,
		CanHold:             order.CheckHold(now) == nil,
		CanCustomerCancel:   order.CanCustomerCancel(now),
		CancelTimeRemaining: order.CancelTimeRemaining(now),
		RefundStatus:        order.RefundStatus,
		OtoID:               order.OtoID,
		CreatedAt:           order.CreatedAt,
		UpdatedAt:           order.UpdatedAt,
	}, nil
}
