package commands_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/nooks/internal/branches"
	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/extapi"
	"github.com/dejobratic/nooks/internal/orders/app/commands"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/pos"
	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/shopspring/decimal"
)

var (
	riyadhBranch = branches.Branch{ID: "riyadh-olaya", Name: "Olaya", City: "Riyadh", POSBranchID: "pos-branch-7"}
	placedAt     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type placeOrderFixture struct {
	repo      *mockRepository
	sessions  *mockSessions
	claims    *mockClaims
	payments  *mockPayments
	pos       *mockPOS
	delivery  *mockDelivery
	loyalty   *mockLoyalty
	promos    *mockPromotions
	events    *mockEventBus
	effects   *inlineEffects
	dispatchF int
}

func newPlaceOrderFixture() *placeOrderFixture {
	return &placeOrderFixture{
		repo:     &mockRepository{},
		sessions: &mockSessions{},
		claims:   &mockClaims{},
		payments: &mockPayments{},
		pos:      &mockPOS{},
		delivery: &mockDelivery{},
		loyalty:  &mockLoyalty{},
		promos:   &mockPromotions{},
		events:   &mockEventBus{},
		effects:  &inlineEffects{},
	}
}

func (f *placeOrderFixture) handler() *commands.PlaceOrderCommandHandler {
	return commands.NewPlaceOrderCommandHandler(commands.PlaceOrderDeps{
		Repo:           f.repo,
		Sessions:       f.sessions,
		Claims:         f.claims,
		Branches:       mockBranches{branches: map[string]branches.Branch{riyadhBranch.ID: riyadhBranch}},
		Payments:       f.payments,
		POS:            f.pos,
		Delivery:       f.delivery,
		Loyalty:        f.loyalty,
		Promotions:     f.promos,
		Events:         f.events,
		Effects:        f.effects,
		Clock:          clock.NewFake(placedAt),
		Logger:         discardLogger,
		CommissionRate: decimal.RequireFromString("0.01"),
		OnDispatchFailure: func(ctx context.Context) {
			f.dispatchF++
		},
	})
}

func deliveryCommand() commands.PlaceOrderCommand {
	return commands.PlaceOrderCommand{
		OrderID:   "order-1",
		PaymentID: "pay-1",
		Customer:  domain.Customer{ID: "cust-1", Name: "Sara", Phone: "+966500000000"},
		BranchID:  riyadhBranch.ID,
		OrderType: domain.OrderTypeDelivery,
		Items: []domain.Item{
			{ProductID: "latte", Name: "Latte", Quantity: 2, UnitPrice: decimal.NewFromInt(45),
				Customizations: []domain.Customization{{Group: "size", Option: "large", Price: decimal.NewFromInt(5)}}},
		},
		DeliveryFee:     decimal.NewFromInt(15),
		DeliveryAddress: &domain.Address{Address: "King Fahd Rd", City: "Riyadh"},
	}
}

func TestPlaceOrder(t *testing.T) {
	t.Run("places a paid delivery order", func(t *testing.T) {
		f := newPlaceOrderFixture()
		var posReq pos.OrderRequest
		f.pos.createOrderFn = func(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error) {
			posReq = req
			return pos.OrderResult{ID: "pos-9"}, nil
		}
		var created domain.Order
		f.repo.createFn = func(ctx context.Context, order domain.Order) (bool, error) {
			created = order
			return true, nil
		}

		result, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}

		order := result.Order
		if result.Duplicate {
			t.Error("expected a new order")
		}
		if order.Status != domain.StatusPreparing {
			t.Errorf("expected status Preparing, got %s", order.Status)
		}
		if !order.Total.Equal(decimal.NewFromInt(115)) {
			t.Errorf("expected total 115, got %s", order.Total)
		}
		if !order.CommissionAmount.Valid || !order.CommissionAmount.Decimal.Equal(decimal.NewFromInt(1)) {
			t.Errorf("expected commission 1.00, got %v", order.CommissionAmount)
		}
		if order.POSOrderID != "pos-9" || order.OtoID != "oto-1" || order.PaymentID != "pay-1" {
			t.Errorf("unexpected external ids %+v", order)
		}
		if posReq.BranchID != "pos-branch-7" || !posReq.Delivery || len(posReq.Items[0].Options) != 1 {
			t.Errorf("unexpected pos request %+v", posReq)
		}
		if created.ID != "order-1" {
			t.Errorf("expected order to be persisted, got %+v", created)
		}
		if !f.effects.ran("loyalty_earn") || !f.effects.ran("order_mirror") {
			t.Errorf("expected loyalty and mirror side effects, got %v", f.effects.names)
		}
		if len(f.claims.released) != 0 {
			t.Errorf("expected claim to be kept, released %v", f.claims.released)
		}
	})

	t.Run("pickup orders are never dispatched", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.delivery.requestDeliveryFn = func(ctx context.Context, req delivery.Request) (delivery.Dispatch, error) {
			t.Fatal("dispatch must not be requested for pickup")
			return delivery.Dispatch{}, nil
		}
		cmd := deliveryCommand()
		cmd.OrderType = domain.OrderTypePickup
		cmd.DeliveryAddress = nil
		cmd.DeliveryFee = decimal.Zero

		result, err := f.handler().Handle(context.Background(), cmd)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if result.Order.OtoID != "" || result.Order.DeliveryAddress != nil {
			t.Errorf("unexpected delivery data on pickup order %+v", result.Order)
		}
	})

	t.Run("rejects undeliverable address before any payment call", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.payments.statusFn = func(ctx context.Context, id string) (payment.Session, error) {
			t.Fatal("payment provider must not be called")
			return payment.Session{}, nil
		}
		cmd := deliveryCommand()
		cmd.DeliveryAddress.City = "Jeddah"

		_, err := f.handler().Handle(context.Background(), cmd)
		if !errors.Is(err, delivery.ErrCityMismatch) {
			t.Fatalf("expected ErrCityMismatch, got %v", err)
		}
		if len(f.claims.released) != 1 {
			t.Errorf("expected claim to be released")
		}
	})

	t.Run("continues in demo mode when pos is not configured", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.pos.createOrderFn = func(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error) {
			return pos.OrderResult{}, pos.ErrNotConfigured
		}

		result, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !result.Order.DemoMode || result.Order.POSOrderID != "" {
			t.Errorf("expected demo mode order, got %+v", result.Order)
		}
	})

	t.Run("pos rejection aborts and refunds", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.pos.createOrderFn = func(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error) {
			return pos.OrderResult{}, &extapi.APIError{Service: "pos", StatusCode: 422, Message: "product out of stock"}
		}
		var refunded string
		var refundAmount decimal.Decimal
		f.payments.refundFn = func(ctx context.Context, id string, amount decimal.Decimal) (payment.Refund, error) {
			refunded, refundAmount = id, amount
			return payment.Refund{ID: "ref-1"}, nil
		}
		f.repo.createFn = func(ctx context.Context, order domain.Order) (bool, error) {
			t.Fatal("order must not be persisted")
			return false, nil
		}

		_, err := f.handler().Handle(context.Background(), deliveryCommand())
		if !errors.Is(err, commands.ErrPOSRejected) {
			t.Fatalf("expected ErrPOSRejected, got %v", err)
		}
		if refunded != "pay-1" || !refundAmount.Equal(decimal.NewFromInt(115)) {
			t.Errorf("expected compensating refund of 115 on pay-1, got %s on %q", refundAmount, refunded)
		}
		if len(f.effects.names) != 0 {
			t.Errorf("expected refund to bypass the side-effect queue, got %v", f.effects.names)
		}
		if len(f.claims.released) != 1 {
			t.Errorf("expected claim to be released")
		}
	})

	t.Run("dispatch failure does not fail checkout", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.delivery.requestDeliveryFn = func(ctx context.Context, req delivery.Request) (delivery.Dispatch, error) {
			return delivery.Dispatch{}, delivery.ErrNoOptions
		}

		result, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if result.Order.OtoID != "" {
			t.Errorf("expected no courier, got %q", result.Order.OtoID)
		}
		if f.dispatchF != 1 {
			t.Errorf("expected one dispatch failure, got %d", f.dispatchF)
		}
	})

	t.Run("compensating refund returns the minimum charge", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.sessions.getByOrderIDFn = func(ctx context.Context, orderID string) (*ports.PaymentSession, error) {
			return &ports.PaymentSession{OrderID: orderID, PaymentID: "pay-1", Amount: decimal.RequireFromString("0.5"), Status: payment.StatusPaid}, nil
		}
		f.promos.validateFn = func(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Quote, error) {
			return promo.Quote{Code: "ALMOSTFREE", Discount: subtotal.Sub(decimal.RequireFromString("0.5"))}, nil
		}
		f.pos.createOrderFn = func(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error) {
			return pos.OrderResult{}, &extapi.APIError{Service: "pos", StatusCode: 422, Message: "closed"}
		}
		var refundAmount decimal.Decimal
		f.payments.refundFn = func(ctx context.Context, id string, amount decimal.Decimal) (payment.Refund, error) {
			refundAmount = amount
			return payment.Refund{ID: "ref-1"}, nil
		}
		cmd := deliveryCommand()
		cmd.PromoCode = "ALMOSTFREE"

		if _, err := f.handler().Handle(context.Background(), cmd); !errors.Is(err, commands.ErrPOSRejected) {
			t.Fatalf("expected ErrPOSRejected, got %v", err)
		}
		if !refundAmount.Equal(decimal.NewFromInt(1)) {
			t.Errorf("expected refund of the 1.00 minimum charge, got %s", refundAmount)
		}
	})

	t.Run("persistence failure cancels courier and refunds", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.repo.createFn = func(ctx context.Context, order domain.Order) (bool, error) {
			return false, errors.New("connection reset")
		}
		var cancelled string
		f.delivery.cancelOrderFn = func(ctx context.Context, orderID string) error {
			cancelled = orderID
			return nil
		}
		var refundAmount decimal.Decimal
		f.payments.refundFn = func(ctx context.Context, id string, amount decimal.Decimal) (payment.Refund, error) {
			refundAmount = amount
			return payment.Refund{ID: "ref-1"}, nil
		}

		_, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err == nil {
			t.Fatal("expected persistence error")
		}
		if cancelled != "oto-1" {
			t.Errorf("expected courier oto-1 to be cancelled, got %q", cancelled)
		}
		if !refundAmount.Equal(decimal.NewFromInt(115)) {
			t.Errorf("expected refund of 115, got %s", refundAmount)
		}
		if len(f.claims.released) != 1 {
			t.Errorf("expected claim to be released")
		}
		if len(f.effects.names) != 0 {
			t.Errorf("expected no side effects for an unpersisted order, got %v", f.effects.names)
		}
	})

	t.Run("shipment failure keeps the delivery order id", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.delivery.requestDeliveryFn = func(ctx context.Context, req delivery.Request) (delivery.Dispatch, error) {
			return delivery.Dispatch{OtoID: "777"}, errors.New("create shipment: 500")
		}
		var created domain.Order
		f.repo.createFn = func(ctx context.Context, order domain.Order) (bool, error) {
			created = order
			return true, nil
		}

		if _, err := f.handler().Handle(context.Background(), deliveryCommand()); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if created.OtoID != "777" || !created.ShipmentPending {
			t.Errorf("expected 777 persisted with a pending shipment, got %q pending=%v", created.OtoID, created.ShipmentPending)
		}
		if f.dispatchF != 1 {
			t.Errorf("expected one dispatch failure, got %d", f.dispatchF)
		}
	})

	t.Run("side effect failures are swallowed", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.loyalty.earnFn = func(ctx context.Context, customerID, orderID string, total decimal.Decimal) (int64, error) {
			return 0, errors.New("ledger down")
		}

		if _, err := f.handler().Handle(context.Background(), deliveryCommand()); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if len(f.effects.errors) != 1 {
			t.Errorf("expected loyalty failure to reach the side-effect runner, got %v", f.effects.errors)
		}
	})

	t.Run("unpaid checkout is refused", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.payments.statusFn = func(ctx context.Context, id string) (payment.Session, error) {
			return payment.Session{ID: id, Status: payment.StatusInitiated}, nil
		}

		_, err := f.handler().Handle(context.Background(), deliveryCommand())
		if !errors.Is(err, commands.ErrPaymentRequired) {
			t.Fatalf("expected ErrPaymentRequired, got %v", err)
		}
	})

	t.Run("declined payment is refused", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.payments.statusFn = func(ctx context.Context, id string) (payment.Session, error) {
			return payment.Session{ID: id, Status: payment.StatusFailed}, nil
		}

		_, err := f.handler().Handle(context.Background(), deliveryCommand())
		if !errors.Is(err, commands.ErrPaymentDeclined) {
			t.Fatalf("expected ErrPaymentDeclined, got %v", err)
		}
	})

	t.Run("stored session commission wins over current rate", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.sessions.getByOrderIDFn = func(ctx context.Context, orderID string) (*ports.PaymentSession, error) {
			return &ports.PaymentSession{
				OrderID:          orderID,
				PaymentID:        "pay-1",
				Amount:           decimal.NewFromInt(115),
				CommissionAmount: decimal.NewFromInt(2),
				CommissionRate:   decimal.RequireFromString("0.02"),
				Status:           payment.StatusPaid,
			}, nil
		}
		f.payments.statusFn = func(ctx context.Context, id string) (payment.Session, error) {
			t.Fatal("a session marked paid is trusted")
			return payment.Session{}, nil
		}

		result, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !result.Order.CommissionAmount.Decimal.Equal(decimal.NewFromInt(2)) {
			t.Errorf("expected stored commission 2, got %s", result.Order.CommissionAmount.Decimal)
		}
	})

	t.Run("valid promo discounts the total and is redeemed", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.promos.validateFn = func(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Quote, error) {
			return promo.Quote{Code: "WELCOME", Discount: decimal.NewFromInt(15)}, nil
		}
		var redeemed string
		f.promos.redeemFn = func(ctx context.Context, code string) error {
			redeemed = code
			return nil
		}
		cmd := deliveryCommand()
		cmd.PromoCode = "welcome"

		result, err := f.handler().Handle(context.Background(), cmd)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !result.Order.Total.Equal(decimal.NewFromInt(100)) || result.Order.PromoCode != "WELCOME" {
			t.Errorf("unexpected promo outcome total=%s code=%q", result.Order.Total, result.Order.PromoCode)
		}
		if redeemed != "WELCOME" {
			t.Errorf("expected promo to be redeemed, got %q", redeemed)
		}
	})

	t.Run("promo exhausted after payment keeps the paid discount", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.sessions.getByOrderIDFn = func(ctx context.Context, orderID string) (*ports.PaymentSession, error) {
			return &ports.PaymentSession{
				OrderID:          orderID,
				PaymentID:        "pay-1",
				Amount:           decimal.RequireFromString("103.50"),
				DeliveryFee:      decimal.NewFromInt(15),
				CommissionAmount: decimal.RequireFromString("0.89"),
				CommissionRate:   decimal.RequireFromString("0.01"),
				Status:           payment.StatusPaid,
			}, nil
		}
		f.promos.validateFn = func(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Quote, error) {
			return promo.Quote{}, promo.ErrUsageLimitReached
		}
		f.promos.redeemFn = func(ctx context.Context, code string) error {
			t.Error("an exhausted code must not be redeemed again")
			return nil
		}
		cmd := deliveryCommand()
		cmd.PromoCode = "welcome10"

		result, err := f.handler().Handle(context.Background(), cmd)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		order := result.Order
		if !order.Total.Equal(decimal.RequireFromString("103.5")) || !order.Discount.Equal(decimal.RequireFromString("11.5")) {
			t.Errorf("expected total 103.50 after 11.50 discount, got %s/%s", order.Total, order.Discount)
		}
		if order.PromoCode != "WELCOME10" {
			t.Errorf("expected promo code to be kept, got %q", order.PromoCode)
		}
		want := decimal.RequireFromString("0.89")
		if !order.CommissionAmount.Decimal.Equal(want) {
			t.Errorf("expected commission 0.89, got %s", order.CommissionAmount.Decimal)
		}
	})

	t.Run("stored commission is recomputed when amounts changed", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.sessions.getByOrderIDFn = func(ctx context.Context, orderID string) (*ports.PaymentSession, error) {
			return &ports.PaymentSession{
				OrderID:          orderID,
				PaymentID:        "pay-1",
				Amount:           decimal.RequireFromString("103.50"),
				CommissionAmount: decimal.RequireFromString("0.89"),
				CommissionRate:   decimal.RequireFromString("0.01"),
				Status:           payment.StatusPaid,
			}, nil
		}

		result, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		order := result.Order
		want := pricing.Commission(order.Total, order.DeliveryFee, decimal.RequireFromString("0.01"))
		if !order.CommissionAmount.Decimal.Equal(want) || !want.Equal(decimal.NewFromInt(1)) {
			t.Errorf("expected commission 1.00 on the persisted total, got %s", order.CommissionAmount.Decimal)
		}
	})

	t.Run("invalid promo is dropped", func(t *testing.T) {
		f := newPlaceOrderFixture()
		cmd := deliveryCommand()
		cmd.PromoCode = "NOPE"

		result, err := f.handler().Handle(context.Background(), cmd)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if result.Order.PromoCode != "" || !result.Order.Discount.IsZero() {
			t.Errorf("expected no discount, got %+v", result.Order)
		}
	})
}

func TestPlaceOrderIdempotency(t *testing.T) {
	t.Run("repeat checkout returns stored order", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.claims.claimFn = func(ctx context.Context, orderID string) (bool, error) { return false, nil }
		f.repo.getByIDFn = func(ctx context.Context, id string) (*domain.Order, error) {
			return &domain.Order{ID: id, Status: domain.StatusPreparing}, nil
		}
		f.pos.createOrderFn = func(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error) {
			t.Fatal("pos must not be called twice")
			return pos.OrderResult{}, nil
		}

		result, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !result.Duplicate || result.Order.ID != "order-1" {
			t.Errorf("expected duplicate of order-1, got %+v", result)
		}
	})

	t.Run("expired claim on a placed order returns stored order", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.repo.getByIDFn = func(ctx context.Context, id string) (*domain.Order, error) {
			return &domain.Order{ID: id, Status: domain.StatusReady}, nil
		}
		f.payments.statusFn = func(ctx context.Context, id string) (payment.Session, error) {
			t.Fatal("payment must not be verified again")
			return payment.Session{}, nil
		}
		f.pos.createOrderFn = func(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error) {
			t.Fatal("pos must not be called again")
			return pos.OrderResult{}, nil
		}

		result, err := f.handler().Handle(context.Background(), deliveryCommand())
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !result.Duplicate || result.Order.Status != domain.StatusReady {
			t.Errorf("expected stored order as duplicate, got %+v", result)
		}
		if len(f.claims.released) != 0 {
			t.Errorf("expected renewed claim to be kept, released %v", f.claims.released)
		}
	})

	t.Run("concurrent checkout is refused", func(t *testing.T) {
		f := newPlaceOrderFixture()
		f.claims.claimFn = func(ctx context.Context, orderID string) (bool, error) { return false, nil }

		_, err := f.handler().Handle(context.Background(), deliveryCommand())
		if !errors.Is(err, commands.ErrCheckoutInProgress) {
			t.Fatalf("expected ErrCheckoutInProgress, got %v", err)
		}
		if len(f.claims.released) != 0 {
			t.Error("a claim held by someone else must not be released")
		}
	})
}

func TestPlaceOrderValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*commands.PlaceOrderCommand)
	}{
		{"missing order id", func(c *commands.PlaceOrderCommand) { c.OrderID = "" }},
		{"missing branch", func(c *commands.PlaceOrderCommand) { c.BranchID = " " }},
		{"delivery without address", func(c *commands.PlaceOrderCommand) { c.DeliveryAddress = nil }},
		{"negative delivery fee", func(c *commands.PlaceOrderCommand) { c.DeliveryFee = decimal.NewFromInt(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPlaceOrderFixture()
			cmd := deliveryCommand()
			tt.mutate(&cmd)

			_, err := f.handler().Handle(context.Background(), cmd)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	t.Run("unknown branch", func(t *testing.T) {
		f := newPlaceOrderFixture()
		cmd := deliveryCommand()
		cmd.BranchID = "nowhere"

		_, err := f.handler().Handle(context.Background(), cmd)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
