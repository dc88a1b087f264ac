package queries

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dejobratic/nooks/internal/branches"
	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
)

type GetPaymentStatusQuery struct {
	PaymentID string
}

type GetPaymentStatusQueryHandler struct {
	payments ports.PaymentGateway
	sessions ports.PaymentSessionRepository
}

func NewGetPaymentStatusQueryHandler(payments ports.PaymentGateway, sessions ports.PaymentSessionRepository) *GetPaymentStatusQueryHandler {
	return &GetPaymentStatusQueryHandler{payments: payments, sessions: sessions}
}

// Handle asks the provider for the live status and mirrors a changed status
// into the stored session. The client polls this while the customer pays.
func (h *GetPaymentStatusQueryHandler) Handle(ctx context.Context, query GetPaymentStatusQuery) (payment.Session, error) {
	if strings.TrimSpace(query.PaymentID) == "" {
		return payment.Session{}, fmt.Errorf("%w: payment id is required", domain.ErrValidation)
	}
	session, err := h.payments.Status(ctx, query.PaymentID)
	if err != nil {
		return payment.Session{}, err
	}

	stored, err := h.sessions.GetByPaymentID(ctx, query.PaymentID)
	switch {
	case errors.Is(err, ports.ErrSessionNotFound):
	case err != nil:
		return payment.Session{}, err
	case stored.Status != session.Status && session.Status != payment.StatusInitiated:
		if err := h.sessions.UpdateStatus(ctx, query.PaymentID, session.Status); err != nil {
			return payment.Session{}, err
		}
	}
	return session, nil
}

// DeliveryOptionsQuery prices courier offers from a branch to a destination.
type DeliveryOptionsQuery struct {
	BranchID string
	City     string
	Lat      *float64
	Lng      *float64
}

type DeliveryOptionsQueryHandler struct {
	branches ports.BranchDirectory
	delivery ports.DeliveryGateway
}

func NewDeliveryOptionsQueryHandler(branches ports.BranchDirectory, delivery ports.DeliveryGateway) *DeliveryOptionsQueryHandler {
	return &DeliveryOptionsQueryHandler{branches: branches, delivery: delivery}
}

func (h *DeliveryOptionsQueryHandler) Handle(ctx context.Context, query DeliveryOptionsQuery) ([]delivery.Option, error) {
	if strings.TrimSpace(query.BranchID) == "" {
		return nil, fmt.Errorf("%w: branchId is required", domain.ErrValidation)
	}
	branch, err := h.branches.Lookup(query.BranchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	var coords *branches.Coordinates
	if query.Lat != nil && query.Lng != nil {
		coords = &branches.Coordinates{Lat: *query.Lat, Lng: *query.Lng}
	}
	return h.delivery.DeliveryOptions(ctx, branch, query.City, coords)
}

type DispatchStatusQuery struct {
	OrderID string
}

type DispatchStatusQueryHandler struct {
	delivery ports.DeliveryGateway
}

func NewDispatchStatusQueryHandler(delivery ports.DeliveryGateway) *DispatchStatusQueryHandler {
	return &DispatchStatusQueryHandler{delivery: delivery}
}

func (h *DispatchStatusQueryHandler) Handle(ctx context.Context, query DispatchStatusQuery) (delivery.Status, error) {
	if err := requireOrderID(query.OrderID); err != nil {
		return delivery.Status{}, err
	}
	return h.delivery.OrderStatus(ctx, query.OrderID)
}
