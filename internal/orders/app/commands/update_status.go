package commands

import (
	"context"

	"github.com/dejobratic/nooks/internal/orders/domain"
)

// UpdateStatusCommand is a dashboard-driven status change. Status must be
// one of the fixed status names.
type UpdateStatusCommand struct {
	OrderID string
	Status  string
}

type UpdateStatusCommandHandler struct {
	lc Lifecycle
}

func NewUpdateStatusCommandHandler(lc Lifecycle) *UpdateStatusCommandHandler {
	return &UpdateStatusCommandHandler{lc: lc}
}

func (h *UpdateStatusCommandHandler) Handle(ctx context.Context, cmd UpdateStatusCommand) (*domain.Order, error) {
	if err := requireOrderID(cmd.OrderID); err != nil {
		return nil, err
	}
	to, err := domain.ParseStatus(cmd.Status)
	if err != nil {
		return nil, err
	}
	order, err := h.lc.Repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == to {
		return order, nil
	}
	if err := order.CheckStatusUpdate(to); err != nil {
		return nil, err
	}

	updated, err := h.lc.Repo.UpdateStatus(ctx, order.ID, order.Status, to)
	if err != nil {
		return nil, reconcileConflict(ctx, h.lc.Repo, order.ID, err)
	}
	h.lc.announce(ctx, order.ID, order.Status, to)
	return updated, nil
}
