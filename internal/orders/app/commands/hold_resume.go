package commands

import (
	"context"

	"github.com/dejobratic/nooks/internal/orders/domain"
)

type HoldOrderCommand struct {
	OrderID string
}

type HoldOrderCommandHandler struct {
	lc Lifecycle
}

func NewHoldOrderCommandHandler(lc Lifecycle) *HoldOrderCommandHandler {
	return &HoldOrderCommandHandler{lc: lc}
}

// Handle puts a freshly placed order on hold so the customer can edit it.
// Past HoldWindow it fails with domain.ErrWindowExpired.
func (h *HoldOrderCommandHandler) Handle(ctx context.Context, cmd HoldOrderCommand) (*domain.Order, error) {
	if err := requireOrderID(cmd.OrderID); err != nil {
		return nil, err
	}
	order, err := h.lc.Repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := order.CheckHold(h.lc.now()); err != nil {
		return nil, err
	}

	updated, err := h.lc.Repo.UpdateStatus(ctx, order.ID, domain.StatusPreparing, domain.StatusOnHold)
	if err != nil {
		return nil, reconcileConflict(ctx, h.lc.Repo, order.ID, err)
	}
	h.lc.announce(ctx, order.ID, domain.StatusPreparing, domain.StatusOnHold)
	return updated, nil
}

type ResumeOrderCommand struct {
	OrderID string
}

type ResumeOrderCommandHandler struct {
	lc Lifecycle
}

func NewResumeOrderCommandHandler(lc Lifecycle) *ResumeOrderCommandHandler {
	return &ResumeOrderCommandHandler{lc: lc}
}

// Handle returns a held order to Preparing. No window applies, and resuming
// an order that is already Preparing returns it unchanged.
func (h *ResumeOrderCommandHandler) Handle(ctx context.Context, cmd ResumeOrderCommand) (*domain.Order, error) {
	if err := requireOrderID(cmd.OrderID); err != nil {
		return nil, err
	}
	order, err := h.lc.Repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	ok, err := order.CheckResume()
	if err != nil {
		return nil, err
	}
	if !ok {
		return order, nil
	}

	updated, err := h.lc.Repo.UpdateStatus(ctx, order.ID, domain.StatusOnHold, domain.StatusPreparing)
	if err != nil {
		return nil, reconcileConflict(ctx, h.lc.Repo, order.ID, err)
	}
	h.lc.announce(ctx, order.ID, domain.StatusOnHold, domain.StatusPreparing)
	return updated, nil
}
