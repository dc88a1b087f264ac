package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

// RequestDeliveryCommand re-dispatches an order whose courier request failed
// during checkout.
type RequestDeliveryCommand struct {
	OrderID string
}

type RequestDeliveryCommandHandler struct {
	repo     ports.OrderRepository
	branches ports.BranchDirectory
	delivery ports.DeliveryGateway
}

func NewRequestDeliveryCommandHandler(repo ports.OrderRepository, branches ports.BranchDirectory, delivery ports.DeliveryGateway) *RequestDeliveryCommandHandler {
	return &RequestDeliveryCommandHandler{repo: repo, branches: branches, delivery: delivery}
}

// Handle returns the order unchanged when a courier is already booked. An
// order whose delivery order exists upstream without a shipment resumes from
// the shipment step.
func (h *RequestDeliveryCommandHandler) Handle(ctx context.Context, cmd RequestDeliveryCommand) (*domain.Order, error) {
	if err := requireOrderID(cmd.OrderID); err != nil {
		return nil, err
	}
	order, err := h.repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if order.OtoID != "" && !order.ShipmentPending {
		return order, nil
	}
	if order.IsTerminal() {
		return nil, domain.ErrAlreadyTerminal
	}
	if !order.ShouldDispatch() {
		return nil, fmt.Errorf("%w: only delivery orders with an address are dispatched", ErrNotDispatchable)
	}

	branch, err := h.branches.Lookup(order.BranchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDispatchable, err)
	}

	req := dispatchRequest(*order, branch)
	req.OtoID = order.OtoID
	dispatch, err := h.delivery.RequestDelivery(ctx, req)
	if err != nil {
		if dispatch.OtoID != "" && dispatch.OtoID != order.OtoID {
			if setErr := h.repo.SetDispatch(ctx, order.ID, dispatch.OtoID, true); setErr != nil {
				return nil, errors.Join(err, setErr)
			}
		}
		return nil, err
	}
	if err := h.repo.SetDispatch(ctx, order.ID, dispatch.OtoID, false); err != nil {
		return nil, err
	}
	order.OtoID = dispatch.OtoID
	order.ShipmentPending = false
	return order, nil
}
