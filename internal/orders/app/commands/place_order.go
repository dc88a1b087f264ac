package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dejobratic/nooks/internal/branches"
	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/pos"
	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/shopspring/decimal"
)

// PlaceOrderCommand finalises a paid checkout. OrderID is generated by the
// client when the customer commits to paying and is reused as the
// idempotency key for every external call.
type PlaceOrderCommand struct {
	OrderID         string
	PaymentID       string
	Customer        domain.Customer
	BranchID        string
	OrderType       domain.OrderType
	Items           []domain.Item
	DeliveryFee     decimal.Decimal
	PromoCode       string
	DeliveryAddress *domain.Address
}

func (c PlaceOrderCommand) Validate() error {
	if err := requireOrderID(c.OrderID); err != nil {
		return err
	}
	if strings.TrimSpace(c.BranchID) == "" {
		return fmt.Errorf("%w: branchId is required", domain.ErrValidation)
	}
	if c.OrderType == domain.OrderTypeDelivery {
		if c.DeliveryAddress == nil || strings.TrimSpace(c.DeliveryAddress.Address) == "" {
			return fmt.Errorf("%w: delivery address is required", domain.ErrValidation)
		}
	}
	if c.DeliveryFee.IsNegative() {
		return fmt.Errorf("%w: deliveryFee must not be negative", domain.ErrValidation)
	}
	return nil
}

// PlaceOrderResult is the persisted order. Duplicate is set when the order had
// already been placed by an earlier call with the same id.
type PlaceOrderResult struct {
	Order     *domain.Order
	Duplicate bool
}

type PlaceOrderHandler interface {
	Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlaceOrderResult, error)
}

// PlaceOrderDeps are the collaborators of the checkout orchestration.
type PlaceOrderDeps struct {
	Repo           ports.OrderRepository
	Sessions       ports.PaymentSessionRepository
	Claims         ports.CheckoutClaims
	Branches       ports.BranchDirectory
	Payments       ports.PaymentGateway
	POS            ports.POSGateway
	Delivery       ports.DeliveryGateway
	Loyalty        ports.LoyaltyLedger
	Promotions     ports.Promotions
	Events         ports.EventBus
	Effects        ports.SideEffects
	Clock          clock.Clock
	Logger         *slog.Logger
	CommissionRate decimal.Decimal
	// MinChargeMinor is the provider minimum charge. Compensating refunds
	// return what was charged, not the order total. Defaults to
	// payment.DefaultMinChargeMinor.
	MinChargeMinor int64
	// OnDispatchFailure is called when courier dispatch fails. Optional.
	OnDispatchFailure func(ctx context.Context)
}

type PlaceOrderCommandHandler struct {
	deps PlaceOrderDeps
}

func NewPlaceOrderCommandHandler(deps PlaceOrderDeps) *PlaceOrderCommandHandler {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.MinChargeMinor <= 0 {
		deps.MinChargeMinor = payment.DefaultMinChargeMinor
	}
	return &PlaceOrderCommandHandler{deps: deps}
}

// Handle runs the checkout sequence: claim, branch and eligibility checks,
// payment verification, POS order, courier dispatch, persistence, then
// best-effort side effects. Failures before persistence release the claim so
// the checkout can be retried with the same id.
func (h *PlaceOrderCommandHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (result *PlaceOrderResult, err error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	claimed, err := h.deps.Claims.Claim(ctx, cmd.OrderID)
	if err != nil {
		return nil, fmt.Errorf("claim checkout: %w", err)
	}
	if !claimed {
		existing, getErr := h.deps.Repo.GetByID(ctx, cmd.OrderID)
		if getErr == nil {
			return &PlaceOrderResult{Order: existing, Duplicate: true}, nil
		}
		if errors.Is(getErr, ports.ErrNotFound) {
			return nil, ErrCheckoutInProgress
		}
		return nil, getErr
	}

	defer func() {
		if err == nil {
			return
		}
		if releaseErr := h.deps.Claims.Release(context.WithoutCancel(ctx), cmd.OrderID); releaseErr != nil {
			h.deps.Logger.ErrorContext(ctx, "failed to release checkout claim",
				"order_id", cmd.OrderID,
				"error", releaseErr,
			)
		}
	}()

	// Claims expire, so an order placed under an earlier claim may exist.
	if existing, getErr := h.deps.Repo.GetByID(ctx, cmd.OrderID); getErr == nil {
		return &PlaceOrderResult{Order: existing, Duplicate: true}, nil
	} else if !errors.Is(getErr, ports.ErrNotFound) {
		return nil, getErr
	}

	branch, err := h.deps.Branches.Lookup(cmd.BranchID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if cmd.OrderType == domain.OrderTypeDelivery {
		if err := checkDeliverable(branch, cmd.DeliveryAddress); err != nil {
			return nil, err
		}
	}

	order, promoErr := h.buildOrder(ctx, cmd, branch)
	if err := order.Validate(); err != nil {
		return nil, err
	}

	session, err := h.verifyPayment(ctx, cmd)
	if err != nil {
		return nil, err
	}
	order.PaymentID = session.PaymentID

	if lapsedPromo(promoErr) {
		h.honourPaidDiscount(ctx, &order, cmd, session)
	}
	h.settleCommission(ctx, &order, session)
	if !session.Amount.IsZero() && !session.Amount.Equal(order.Total) {
		h.deps.Logger.WarnContext(ctx, "paid amount differs from order total",
			"order_id", order.ID,
			"paid", session.Amount.String(),
			"total", order.Total.String(),
		)
	}

	if err := h.createPOSOrder(ctx, &order, branch); err != nil {
		h.compensatePayment(ctx, order, session)
		return nil, err
	}

	if order.ShouldDispatch() {
		h.dispatch(ctx, &order, branch)
	}

	created, err := h.deps.Repo.Create(ctx, order)
	if err != nil {
		h.abandon(ctx, order, session)
		return nil, fmt.Errorf("persist order: %w", err)
	}
	if !created {
		existing, err := h.deps.Repo.GetByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		return &PlaceOrderResult{Order: existing, Duplicate: true}, nil
	}

	h.scheduleSideEffects(ctx, order, promoErr == nil)

	return &PlaceOrderResult{Order: &order}, nil
}

// buildOrder prices the cart. A rejected promo code is dropped from the order
// and its error returned alongside it.
func (h *PlaceOrderCommandHandler) buildOrder(ctx context.Context, cmd PlaceOrderCommand, branch branches.Branch) (domain.Order, error) {
	now := h.deps.Clock.Now()
	lines := cartLines(cmd.Items)

	var promoErr error
	discount := decimal.Zero
	promoCode := strings.TrimSpace(cmd.PromoCode)
	if promoCode != "" {
		before := pricing.Compute(lines, cmd.DeliveryFee, decimal.Zero).SubtotalBeforePromo
		quote, err := h.deps.Promotions.Validate(ctx, promoCode, before)
		if err != nil {
			promoErr = err
			h.deps.Logger.WarnContext(ctx, "promo code rejected at checkout",
				"order_id", cmd.OrderID,
				"promo_code", promoCode,
				"error", err,
			)
			promoCode = ""
		} else {
			discount = quote.Discount
			promoCode = quote.Code
		}
	}
	amounts := pricing.Compute(lines, cmd.DeliveryFee, discount)

	order := domain.Order{
		ID:               cmd.OrderID,
		Status:           domain.StatusPreparing,
		OrderType:        cmd.OrderType,
		Customer:         cmd.Customer,
		BranchID:         branch.ID,
		BranchName:       branch.Name,
		Items:            cmd.Items,
		Total:            amounts.Total,
		DeliveryFee:      amounts.DeliveryFee,
		Discount:         amounts.Discount,
		PromoCode:        promoCode,
		RefundStatus:     domain.RefundNone,
		CommissionStatus: domain.CommissionPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if cmd.OrderType == domain.OrderTypeDelivery {
		order.DeliveryAddress = cmd.DeliveryAddress
	}
	return order, promoErr
}

// honourPaidDiscount keeps the discount a customer paid under when the code
// expired or ran out between payment and checkout. The order total becomes
// the paid amount.
func (h *PlaceOrderCommandHandler) honourPaidDiscount(ctx context.Context, order *domain.Order, cmd PlaceOrderCommand, session ports.PaymentSession) {
	if !session.Amount.IsPositive() || !session.Amount.LessThan(order.Total) {
		return
	}
	amounts := pricing.Compute(cartLines(cmd.Items), cmd.DeliveryFee, order.Total.Sub(session.Amount))
	order.Total = amounts.Total
	order.Discount = amounts.Discount
	order.PromoCode = promo.Normalize(cmd.PromoCode)

	h.deps.Logger.InfoContext(ctx, "honouring promo discount already paid",
		"order_id", order.ID,
		"promo_code", order.PromoCode,
		"discount", order.Discount.String(),
	)
}

// settleCommission pins the rate stored with the payment session and derives
// the amount from the persisted total and delivery fee.
func (h *PlaceOrderCommandHandler) settleCommission(ctx context.Context, order *domain.Order, session ports.PaymentSession) {
	rate := h.deps.CommissionRate
	if !session.CommissionAmount.IsZero() || !session.CommissionRate.IsZero() {
		rate = session.CommissionRate
	}
	amount := pricing.Commission(order.Total, order.DeliveryFee, rate)
	if !session.CommissionAmount.IsZero() && !session.CommissionAmount.Equal(amount) {
		h.deps.Logger.WarnContext(ctx, "stored commission does not match order amounts, recomputed",
			"order_id", order.ID,
			"stored", session.CommissionAmount.String(),
			"commission", amount.String(),
		)
	}
	order.CommissionAmount = decimal.NewNullDecimal(amount)
	order.CommissionRate = decimal.NewNullDecimal(rate)
}

// verifyPayment confirms that the payment behind the order was captured.
// A session already marked paid by a webhook is trusted; otherwise the
// provider is asked.
func (h *PlaceOrderCommandHandler) verifyPayment(ctx context.Context, cmd PlaceOrderCommand) (ports.PaymentSession, error) {
	var session ports.PaymentSession
	stored, err := h.deps.Sessions.GetByOrderID(ctx, cmd.OrderID)
	switch {
	case err == nil:
		session = *stored
	case errors.Is(err, ports.ErrSessionNotFound):
		session = ports.PaymentSession{OrderID: cmd.OrderID}
	default:
		return ports.PaymentSession{}, fmt.Errorf("load payment session: %w", err)
	}

	if cmd.PaymentID != "" {
		session.PaymentID = cmd.PaymentID
	}
	if session.PaymentID == "" {
		return ports.PaymentSession{}, ErrPaymentRequired
	}
	if session.Status == payment.StatusPaid {
		return session, nil
	}

	status, err := h.deps.Payments.Status(ctx, session.PaymentID)
	if err != nil {
		return ports.PaymentSession{}, fmt.Errorf("verify payment: %w", err)
	}

	switch status.Status {
	case payment.StatusPaid:
	case payment.StatusFailed:
		return ports.PaymentSession{}, ErrPaymentDeclined
	default:
		return ports.PaymentSession{}, fmt.Errorf("%w: payment is %s", ErrPaymentRequired, status.Status)
	}

	if stored != nil {
		if err := h.deps.Sessions.UpdateStatus(ctx, session.PaymentID, payment.StatusPaid); err != nil {
			h.deps.Logger.WarnContext(ctx, "failed to mark payment session paid",
				"order_id", cmd.OrderID,
				"error", err,
			)
		}
	}
	session.Status = payment.StatusPaid
	return session, nil
}

func (h *PlaceOrderCommandHandler) createPOSOrder(ctx context.Context, order *domain.Order, branch branches.Branch) error {
	req := pos.OrderRequest{
		OrderID:       order.ID,
		BranchID:      branch.POSBranchID,
		Delivery:      order.OrderType == domain.OrderTypeDelivery,
		Discount:      order.Discount,
		CustomerName:  order.Customer.Name,
		CustomerPhone: order.Customer.Phone,
	}
	if req.BranchID == "" {
		req.BranchID = branch.ID
	}
	for _, item := range order.Items {
		line := pos.Item{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice}
		for _, c := range item.Customizations {
			line.Options = append(line.Options, pos.Option{ID: c.Option, Price: c.Price})
		}
		req.Items = append(req.Items, line)
	}
	if addr := order.DeliveryAddress; addr != nil {
		req.Address = &pos.Address{Description: addr.Address, City: addr.City, Latitude: addr.Lat, Longitude: addr.Lng}
	}

	result, err := h.deps.POS.CreateOrder(ctx, req)
	if err != nil {
		if pos.IsNonFatal(err) {
			h.deps.Logger.WarnContext(ctx, "pos unavailable, continuing in demo mode",
				"order_id", order.ID,
				"error", err,
			)
			order.DemoMode = true
			return nil
		}
		return fmt.Errorf("%w: %v", ErrPOSRejected, err)
	}

	order.POSOrderID = result.ID
	return nil
}

// compensatePayment refunds a captured payment when checkout aborts after
// the payment step. The refund runs before the error reaches the caller.
func (h *PlaceOrderCommandHandler) compensatePayment(ctx context.Context, order domain.Order, session ports.PaymentSession) {
	if order.PaymentID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	amount := h.chargedAmount(order, session)

	refund, err := h.deps.Payments.Refund(ctx, order.PaymentID, amount)
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "compensating refund failed, manual refund required",
			"order_id", order.ID,
			"payment_id", order.PaymentID,
			"amount", amount.String(),
			"error", err,
		)
		return
	}
	h.deps.Logger.InfoContext(ctx, "refunded aborted checkout",
		"order_id", order.ID,
		"refund_id", refund.ID,
		"amount", amount.String(),
	)
}

// abandon unwinds a checkout that reached every external system but could
// not be persisted. The courier booking is cancelled and the payment
// refunded. POS has no void call, so its order is only logged.
func (h *PlaceOrderCommandHandler) abandon(ctx context.Context, order domain.Order, session ports.PaymentSession) {
	ctx = context.WithoutCancel(ctx)
	if order.OtoID != "" {
		if err := h.deps.Delivery.CancelOrder(ctx, order.OtoID); err != nil {
			h.deps.Logger.ErrorContext(ctx, "failed to cancel courier for unpersisted order",
				"order_id", order.ID,
				"oto_id", order.OtoID,
				"error", err,
			)
		}
	}
	if order.POSOrderID != "" {
		h.deps.Logger.WarnContext(ctx, "pos order left open for unpersisted checkout",
			"order_id", order.ID,
			"pos_order_id", order.POSOrderID,
		)
	}
	h.compensatePayment(ctx, order, session)
}

// chargedAmount is what the provider actually captured: the paid amount
// raised to the provider minimum.
func (h *PlaceOrderCommandHandler) chargedAmount(order domain.Order, session ports.PaymentSession) decimal.Decimal {
	paid := order.Total
	if session.Amount.IsPositive() {
		paid = session.Amount
	}
	minor := pricing.ApplyMinimum(pricing.ToMinorUnits(paid), h.deps.MinChargeMinor)
	return pricing.FromMinorUnits(minor)
}

// dispatch books a courier. A delivery order created upstream is kept on the
// order even when its shipment could not be booked, so a later request
// resumes it instead of creating another.
func (h *PlaceOrderCommandHandler) dispatch(ctx context.Context, order *domain.Order, branch branches.Branch) {
	dispatch, err := h.deps.Delivery.RequestDelivery(ctx, dispatchRequest(*order, branch))
	order.OtoID = dispatch.OtoID
	if err != nil {
		order.ShipmentPending = dispatch.OtoID != ""
		h.deps.Logger.WarnContext(ctx, "courier dispatch failed, order continues without courier",
			"order_id", order.ID,
			"oto_id", dispatch.OtoID,
			"error", err,
		)
		if h.deps.OnDispatchFailure != nil {
			h.deps.OnDispatchFailure(ctx)
		}
	}
}

func (h *PlaceOrderCommandHandler) scheduleSideEffects(ctx context.Context, order domain.Order, redeemPromo bool) {
	h.deps.Effects.Submit(ctx, "loyalty_earn", func(ctx context.Context) error {
		_, err := h.deps.Loyalty.EarnForOrder(ctx, order.Customer.ID, order.ID, order.Total)
		return err
	})
	h.deps.Effects.Submit(ctx, "order_mirror", func(ctx context.Context) error {
		return h.deps.Events.PublishOrderPlaced(ctx, order)
	})
	if order.PromoCode != "" && redeemPromo {
		h.deps.Effects.Submit(ctx, "promo_redeem", func(ctx context.Context) error {
			return h.deps.Promotions.Redeem(ctx, order.PromoCode)
		})
	}
}

func cartLines(items []domain.Item) []pricing.Line {
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, pricing.Line{UnitPrice: item.PricedUnit(), Quantity: item.Quantity})
	}
	return lines
}

// lapsedPromo reports whether a code was rejected for a reason that can arise
// after the customer already paid with it.
func lapsedPromo(err error) bool {
	return errors.Is(err, promo.ErrExpired) ||
		errors.Is(err, promo.ErrUsageLimitReached) ||
		errors.Is(err, promo.ErrInactive)
}

func checkDeliverable(branch branches.Branch, addr *domain.Address) error {
	destination := delivery.Place{City: addr.City}
	if addr.HasCoordinates() {
		destination.Coords = &branches.Coordinates{Lat: *addr.Lat, Lng: *addr.Lng}
	}
	return delivery.CheckEligibility(delivery.Place{City: branch.City, Coords: branch.Location}, destination)
}

func dispatchRequest(order domain.Order, branch branches.Branch) delivery.Request {
	req := delivery.Request{
		OrderID: order.ID,
		Amount:  order.Total,
		Customer: delivery.Customer{
			Name:  order.Customer.Name,
			Phone: order.Customer.Phone,
			Email: order.Customer.Email,
		},
		Branch:      branch,
		PaymentPaid: order.PaymentID != "",
	}
	if addr := order.DeliveryAddress; addr != nil {
		req.Address = addr.Address
		req.City = addr.City
		if addr.HasCoordinates() {
			req.Coords = &branches.Coordinates{Lat: *addr.Lat, Lng: *addr.Lng}
		}
	}
	for _, item := range order.Items {
		req.Items = append(req.Items, delivery.Item{
			Name:     item.Name,
			SKU:      item.ProductID,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}
	return req
}
