package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart        = errors.New("checkout: cart is empty")
	ErrMissingBranch    = errors.New("checkout: branch is required")
	ErrMissingAddress   = errors.New("checkout: delivery address is required")
	ErrMissingCharger   = errors.New("checkout: direct payment needs a charger")
	ErrPaymentFailed    = errors.New("checkout: payment failed")
	ErrAlreadyConfirmed = errors.New("checkout: payment already confirmed")
	ErrNoPayment        = errors.New("checkout: no payment in progress")
)

// DefaultPollInterval is how often Poll asks for the payment status.
const DefaultPollInterval = 3 * time.Second

// Method selects how the customer pays.
type Method int

const (
	// MethodRedirect sends the customer to a hosted payment page.
	MethodRedirect Method = iota
	// MethodDirect charges in-app through a Charger, e.g. a wallet sheet.
	MethodDirect
)

// Charger performs an in-app charge and returns the provider payment id.
type Charger interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal) (string, error)
}

// Cart is the customer's selection.
type Cart struct {
	Customer        domain.Customer
	BranchID        string
	OrderType       domain.OrderType
	Items           []domain.Item
	DeliveryFee     decimal.Decimal
	DeliveryAddress *domain.Address
}

// PayOptions configure a payment attempt.
type PayOptions struct {
	Method     Method
	Charger    Charger
	SuccessURL string
	CancelURL  string
}

// PayResult reports what the caller must do next. For redirects the customer
// opens RedirectURL and the order is placed by ConfirmPayment or Poll. For
// direct charges Order is already set.
type PayResult struct {
	PaymentID   string
	RedirectURL string
	Order       *PlacedOrder
}

// Session is one checkout. Its order id is fixed when the session starts so
// every retry and duplicate callback refers to the same order.
type Session struct {
	client  *Client
	orderID string

	mu        sync.Mutex
	cart      Cart
	quote     *promo.Quote
	paymentID string

	// confirmed latches the first successful payment confirmation.
	confirmed atomic.Bool
	placed    atomic.Pointer[PlacedOrder]
}

// NewSession starts a checkout for cart with a fresh order id.
func NewSession(client *Client, cart Cart) *Session {
	if cart.OrderType == "" {
		cart.OrderType = domain.OrderTypePickup
	}
	return &Session{client: client, orderID: uuid.NewString(), cart: cart}
}

func (s *Session) OrderID() string { return s.orderID }

// Amounts derives the breakdown from the cart and any applied promo.
func (s *Session) Amounts() pricing.Amounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.amountsLocked()
}

func (s *Session) amountsLocked() pricing.Amounts {
	lines := make([]pricing.Line, 0, len(s.cart.Items))
	for _, item := range s.cart.Items {
		lines = append(lines, pricing.Line{UnitPrice: item.PricedUnit(), Quantity: item.Quantity})
	}
	discount := decimal.Zero
	if s.quote != nil {
		discount = s.quote.Discount
	}
	return pricing.Compute(lines, s.deliveryFeeLocked(), discount)
}

func (s *Session) deliveryFeeLocked() decimal.Decimal {
	if s.cart.OrderType != domain.OrderTypeDelivery {
		return decimal.Zero
	}
	return s.cart.DeliveryFee
}

// ApplyPromo validates code server-side against the current subtotal. An
// empty code removes the promo.
func (s *Session) ApplyPromo(ctx context.Context, code string) (pricing.Amounts, error) {
	code = strings.TrimSpace(code)

	s.mu.Lock()
	if code == "" {
		s.quote = nil
		amounts := s.amountsLocked()
		s.mu.Unlock()
		return amounts, nil
	}
	subtotal := s.amountsLocked().SubtotalBeforePromo
	s.mu.Unlock()

	quote, err := s.client.ValidatePromo(ctx, code, subtotal)
	if err != nil {
		return pricing.Amounts{}, fmt.Errorf("apply promo %s: %w", code, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote = &quote
	return s.amountsLocked(), nil
}

func (s *Session) validate() error {
	if len(s.cart.Items) == 0 {
		return ErrEmptyCart
	}
	if strings.TrimSpace(s.cart.BranchID) == "" {
		return ErrMissingBranch
	}
	if s.cart.OrderType == domain.OrderTypeDelivery &&
		(s.cart.DeliveryAddress == nil || strings.TrimSpace(s.cart.DeliveryAddress.Address) == "") {
		return ErrMissingAddress
	}
	return nil
}

// Pay validates the cart, checks delivery eligibility, then charges. Direct
// charges place the order immediately; redirects return the page to open.
func (s *Session) Pay(ctx context.Context, opts PayOptions) (PayResult, error) {
	s.mu.Lock()
	if err := s.validate(); err != nil {
		s.mu.Unlock()
		return PayResult{}, err
	}
	cart := s.cart
	amounts := s.amountsLocked()
	s.mu.Unlock()

	if cart.OrderType == domain.OrderTypeDelivery {
		if err := s.client.CheckEligibility(ctx, cart.BranchID, *cart.DeliveryAddress); err != nil {
			return PayResult{}, fmt.Errorf("delivery eligibility: %w", err)
		}
	}

	switch opts.Method {
	case MethodDirect:
		if opts.Charger == nil {
			return PayResult{}, ErrMissingCharger
		}
		paymentID, err := opts.Charger.Charge(ctx, s.orderID, amounts.Total)
		if err != nil {
			return PayResult{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
		}
		s.setPayment(paymentID)
		placed, err := s.ConfirmPayment(ctx, paymentID)
		if err != nil {
			return PayResult{PaymentID: paymentID}, err
		}
		return PayResult{PaymentID: paymentID, Order: placed}, nil

	default:
		req := InitiatePaymentRequest{
			Amount:      amounts.Total,
			Currency:    "SAR",
			OrderID:     s.orderID,
			SuccessURL:  opts.SuccessURL,
			CancelURL:   opts.CancelURL,
			DeliveryFee: amounts.DeliveryFee,
		}
		if cart.OrderType == domain.OrderTypeDelivery {
			req.BranchID = cart.BranchID
			req.DeliveryAddress = cart.DeliveryAddress
		}
		session, err := s.client.InitiatePayment(ctx, req)
		if err != nil {
			return PayResult{}, fmt.Errorf("initiate payment: %w", err)
		}
		s.setPayment(session.ID)
		return PayResult{PaymentID: session.ID, RedirectURL: session.URL}, nil
	}
}

func (s *Session) setPayment(paymentID string) {
	s.mu.Lock()
	s.paymentID = paymentID
	s.mu.Unlock()
}

// PaymentID returns the payment opened by Pay, if any.
func (s *Session) PaymentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentID
}

// ConfirmPayment places the order for a successful payment. Only the first
// caller places it; concurrent or repeated callers get ErrAlreadyConfirmed.
// A failed placement reopens the latch so the confirmation can be retried.
func (s *Session) ConfirmPayment(ctx context.Context, paymentID string) (*PlacedOrder, error) {
	if !s.confirmed.CompareAndSwap(false, true) {
		return s.placed.Load(), ErrAlreadyConfirmed
	}

	s.mu.Lock()
	cart := s.cart
	var promoCode string
	if s.quote != nil {
		promoCode = s.quote.Code
	}
	s.mu.Unlock()

	placed, err := s.client.PlaceOrder(ctx, PlaceOrderRequest{
		OrderID:         s.orderID,
		PaymentID:       paymentID,
		Customer:        cart.Customer,
		BranchID:        cart.BranchID,
		OrderType:       cart.OrderType,
		Items:           cart.Items,
		DeliveryFee:     s.Amounts().DeliveryFee,
		PromoCode:       promoCode,
		DeliveryAddress: cart.DeliveryAddress,
	})
	if err != nil {
		s.confirmed.Store(false)
		return nil, fmt.Errorf("place order: %w", err)
	}
	s.placed.Store(&placed)
	return &placed, nil
}

// Poll checks the payment status every interval until it settles, then
// confirms it. It stops with ErrAlreadyConfirmed when another path, such as
// a deep-link callback, confirmed the payment first.
func (s *Session) Poll(ctx context.Context, interval time.Duration) (*PlacedOrder, error) {
	paymentID := s.PaymentID()
	if paymentID == "" {
		return nil, ErrNoPayment
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if s.confirmed.Load() {
			return s.placed.Load(), ErrAlreadyConfirmed
		}

		status, err := s.client.PaymentStatus(ctx, paymentID)
		if err != nil {
			return nil, fmt.Errorf("payment status: %w", err)
		}
		switch status.Status {
		case payment.StatusPaid:
			return s.ConfirmPayment(ctx, paymentID)
		case payment.StatusFailed, payment.StatusRefunded:
			return nil, fmt.Errorf("%w: status %s", ErrPaymentFailed, status.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
