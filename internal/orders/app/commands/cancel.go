package commands

import (
	"context"
	"errors"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

const customerCancelReason = "Cancelled by customer"

// CancelResult is the cancelled order and the outcome of its refund.
type CancelResult struct {
	Order        *domain.Order
	RefundStatus domain.RefundStatus
	RefundID     string
}

type CustomerCancelCommand struct {
	OrderID string
}

type CustomerCancelCommandHandler struct {
	lc Lifecycle
}

func NewCustomerCancelCommandHandler(lc Lifecycle) *CustomerCancelCommandHandler {
	return &CustomerCancelCommandHandler{lc: lc}
}

// Handle cancels a Preparing order inside CustomerCancelWindow and refunds
// it. Any other state, or a lost race with another transition, reports
// domain.ErrWindowExpired.
func (h *CustomerCancelCommandHandler) Handle(ctx context.Context, cmd CustomerCancelCommand) (*CancelResult, error) {
	if err := requireOrderID(cmd.OrderID); err != nil {
		return nil, err
	}
	order, err := h.lc.Repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := order.CheckCustomerCancel(h.lc.now()); err != nil {
		return nil, err
	}

	cancelled, err := h.lc.Repo.Cancel(ctx, order.ID, ports.Cancellation{
		From:         domain.StatusPreparing,
		Reason:       customerCancelReason,
		By:           domain.CancelledByCustomer,
		RefundStatus: domain.RefundNone,
	})
	if errors.Is(err, ports.ErrConflict) {
		return nil, domain.ErrWindowExpired
	}
	if err != nil {
		return nil, err
	}

	status, refundID := h.lc.refund(ctx, *cancelled)
	cancelled.RefundStatus, cancelled.RefundID = status, refundID
	h.lc.afterCancel(ctx, *cancelled, domain.StatusPreparing)

	return &CancelResult{Order: cancelled, RefundStatus: status, RefundID: refundID}, nil
}

type MerchantCancelCommand struct {
	OrderID string
	Reason  string
	// Refund defaults to true; set it to false to suppress the refund.
	Refund *bool
}

func (c MerchantCancelCommand) shouldRefund() bool {
	return c.Refund == nil || *c.Refund
}

type MerchantCancelCommandHandler struct {
	lc Lifecycle
}

func NewMerchantCancelCommandHandler(lc Lifecycle) *MerchantCancelCommandHandler {
	return &MerchantCancelCommandHandler{lc: lc}
}

// Handle cancels any non-terminal order. A second cancel of the same order
// fails with domain.ErrAlreadyTerminal, so the payment is refunded at most
// once.
func (h *MerchantCancelCommandHandler) Handle(ctx context.Context, cmd MerchantCancelCommand) (*CancelResult, error) {
	if err := requireOrderID(cmd.OrderID); err != nil {
		return nil, err
	}
	order, err := h.lc.Repo.GetByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if err := order.CheckMerchantCancel(cmd.Reason); err != nil {
		return nil, err
	}

	from := order.Status
	cancelled, err := h.lc.Repo.Cancel(ctx, order.ID, ports.Cancellation{
		From:         from,
		Reason:       cmd.Reason,
		By:           domain.CancelledByMerchant,
		RefundStatus: domain.RefundNone,
	})
	if err != nil {
		return nil, reconcileConflict(ctx, h.lc.Repo, order.ID, err)
	}

	result := &CancelResult{Order: cancelled, RefundStatus: domain.RefundNone}
	if cmd.shouldRefund() {
		result.RefundStatus, result.RefundID = h.lc.refund(ctx, *cancelled)
		cancelled.RefundStatus, cancelled.RefundID = result.RefundStatus, result.RefundID
	}
	h.lc.afterCancel(ctx, *cancelled, from)

	return result, nil
}
