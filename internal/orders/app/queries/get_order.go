package queries

import (
	"context"
	"fmt"
	"strings"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

// GetOrderQuery looks an order up either by its own id or by the id the
// dispatch provider assigned to it. Exactly one must be set.
type GetOrderQuery struct {
	OrderID    string
	DispatchID string
}

func (q GetOrderQuery) Validate() error {
	byOrder := strings.TrimSpace(q.OrderID) != ""
	byDispatch := strings.TrimSpace(q.DispatchID) != ""
	switch {
	case byOrder && byDispatch:
		return fmt.Errorf("%w: look up by order id or dispatch id, not both", domain.ErrValidation)
	case !byOrder && !byDispatch:
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	return nil
}

type GetOrderQueryHandler struct {
	repo ports.OrderRepository
}

func NewGetOrderQueryHandler(repo ports.OrderRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if query.DispatchID != "" {
		return h.repo.GetByDispatchID(ctx, strings.TrimSpace(query.DispatchID))
	}
	return h.repo.GetByID(ctx, query.OrderID)
}

func requireOrderID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	return nil
}
