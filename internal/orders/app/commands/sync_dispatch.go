package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

// SyncDispatchCommand applies a courier status to an order. The order is
// found by dispatch id, falling back to the order id. With no Status the
// courier is asked for the current one.
type SyncDispatchCommand struct {
	OtoID   string
	OrderID string
	Status  string
}

func (c SyncDispatchCommand) Validate() error {
	if strings.TrimSpace(c.OtoID) == "" && strings.TrimSpace(c.OrderID) == "" {
		return fmt.Errorf("%w: otoId or orderId is required", domain.ErrValidation)
	}
	return nil
}

type SyncDispatchResult struct {
	Order   *domain.Order
	Changed bool
}

type SyncDispatchCommandHandler struct {
	lc Lifecycle
}

func NewSyncDispatchCommandHandler(lc Lifecycle) *SyncDispatchCommandHandler {
	return &SyncDispatchCommandHandler{lc: lc}
}

// Handle is idempotent: statuses that do not move the order strictly forward
// leave it unchanged.
func (h *SyncDispatchCommandHandler) Handle(ctx context.Context, cmd SyncDispatchCommand) (*SyncDispatchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	order, err := h.find(ctx, cmd)
	if err != nil {
		return nil, err
	}

	status := cmd.Status
	if status == "" {
		current, err := h.lc.Delivery.OrderStatus(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("fetch dispatch status: %w", err)
		}
		status = current.Status
	}

	to, ok := milestoneStatus(delivery.MapStatus(status))
	if !ok || !domain.CanAdvance(order.Status, to) {
		return &SyncDispatchResult{Order: order}, nil
	}

	updated, err := h.lc.Repo.UpdateStatus(ctx, order.ID, order.Status, to)
	if errors.Is(err, ports.ErrConflict) {
		current, getErr := h.lc.Repo.GetByID(ctx, order.ID)
		if getErr != nil {
			return nil, getErr
		}
		return &SyncDispatchResult{Order: current}, nil
	}
	if err != nil {
		return nil, err
	}

	h.lc.announce(ctx, order.ID, order.Status, to)
	return &SyncDispatchResult{Order: updated, Changed: true}, nil
}

func (h *SyncDispatchCommandHandler) find(ctx context.Context, cmd SyncDispatchCommand) (*domain.Order, error) {
	if cmd.OtoID != "" {
		order, err := h.lc.Repo.GetByDispatchID(ctx, cmd.OtoID)
		if err == nil || !errors.Is(err, ports.ErrNotFound) || cmd.OrderID == "" {
			return order, err
		}
	}
	return h.lc.Repo.GetByID(ctx, cmd.OrderID)
}

func milestoneStatus(m delivery.Milestone) (domain.OrderStatus, bool) {
	switch m {
	case delivery.MilestonePickedUp:
		return domain.StatusReady, true
	case delivery.MilestoneOutForDelivery:
		return domain.StatusOutForDelivery, true
	case delivery.MilestoneDelivered:
		return domain.StatusDelivered, true
	default:
		return "", false
	}
}
