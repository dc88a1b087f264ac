package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "SAR"

// InitiatePaymentCommand opens a payment session for an order id. When the
// caller includes delivery details the route is checked before the provider
// is contacted.
type InitiatePaymentCommand struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	SuccessURL  string
	CancelURL   string
	DeliveryFee decimal.Decimal
	Eligibility *CheckEligibilityCommand
}

func (c InitiatePaymentCommand) Validate() error {
	if err := requireOrderID(c.OrderID); err != nil {
		return err
	}
	if !c.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if c.DeliveryFee.IsNegative() {
		return fmt.Errorf("%w: deliveryFee must not be negative", domain.ErrValidation)
	}
	if strings.TrimSpace(c.SuccessURL) == "" {
		return fmt.Errorf("%w: successUrl is required", domain.ErrValidation)
	}
	return nil
}

type InitiatePaymentResult struct {
	Session    payment.Session
	Commission decimal.Decimal
	Rate       decimal.Decimal
}

type InitiatePaymentCommandHandler struct {
	payments   ports.PaymentGateway
	sessions   ports.PaymentSessionRepository
	branches   ports.BranchDirectory
	clock      clock.Clock
	logger     *slog.Logger
	commission decimal.Decimal
}

func NewInitiatePaymentCommandHandler(
	payments ports.PaymentGateway,
	sessions ports.PaymentSessionRepository,
	branches ports.BranchDirectory,
	clk clock.Clock,
	logger *slog.Logger,
	commissionRate decimal.Decimal,
) *InitiatePaymentCommandHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &InitiatePaymentCommandHandler{
		payments:   payments,
		sessions:   sessions,
		branches:   branches,
		clock:      clk,
		logger:     logger,
		commission: commissionRate,
	}
}

// Handle opens the session and records it with the commission computed at
// the current rate. A commission stored by an earlier attempt for the same
// order is kept.
func (h *InitiatePaymentCommandHandler) Handle(ctx context.Context, cmd InitiatePaymentCommand) (*InitiatePaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if cmd.Eligibility != nil {
		if err := NewCheckEligibilityCommandHandler(h.branches).Handle(ctx, *cmd.Eligibility); err != nil {
			return nil, err
		}
	}

	currency := cmd.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	session, err := h.payments.Initiate(ctx, payment.InitiateRequest{
		Amount:      cmd.Amount,
		Currency:    currency,
		OrderID:     cmd.OrderID,
		SuccessURL:  cmd.SuccessURL,
		CancelURL:   cmd.CancelURL,
		Description: "Order " + cmd.OrderID,
	})
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	stored, err := h.sessions.Save(ctx, ports.PaymentSession{
		OrderID:          cmd.OrderID,
		PaymentID:        session.ID,
		Provider:         session.Provider,
		Amount:           pricing.Round2(cmd.Amount),
		DeliveryFee:      pricing.Round2(cmd.DeliveryFee),
		CommissionAmount: pricing.Commission(cmd.Amount, cmd.DeliveryFee, h.commission),
		CommissionRate:   h.commission,
		Status:           session.Status,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("save payment session: %w", err)
	}

	return &InitiatePaymentResult{
		Session:    session,
		Commission: stored.CommissionAmount,
		Rate:       stored.CommissionRate,
	}, nil
}
