package commands_test

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/dejobratic/nooks/internal/branches"
	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/loyalty"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/pos"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/shopspring/decimal"
)

var discardLogger = slog.New(slog.DiscardHandler)

type mockRepository struct {
	createFn           func(ctx context.Context, order domain.Order) (bool, error)
	getByIDFn          func(ctx context.Context, id string) (*domain.Order, error)
	getByDispatchIDFn  func(ctx context.Context, otoID string) (*domain.Order, error)
	updateStatusFn     func(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
	cancelFn           func(ctx context.Context, id string, c ports.Cancellation) (*domain.Order, error)
	updateRefundFn     func(ctx context.Context, id string, status domain.RefundStatus, refundID string) error
	setDispatchFn      func(ctx context.Context, id, otoID string, shipmentPending bool) error
	setPaymentIDFn     func(ctx context.Context, id, paymentID string) error
	recordCommissionFn func(ctx context.Context, id string, amount, rate decimal.Decimal) (bool, error)
}

func (m *mockRepository) Create(ctx context.Context, order domain.Order) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, order)
	}
	return true, nil
}

func (m *mockRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, ports.ErrNotFound
}

func (m *mockRepository) GetByDispatchID(ctx context.Context, otoID string) (*domain.Order, error) {
	if m.getByDispatchIDFn != nil {
		return m.getByDispatchIDFn(ctx, otoID)
	}
	return nil, ports.ErrNotFound
}

func (m *mockRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return nil, nil
}

func (m *mockRepository) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, id, from, to)
	}
	return &domain.Order{ID: id, Status: to}, nil
}

func (m *mockRepository) Cancel(ctx context.Context, id string, c ports.Cancellation) (*domain.Order, error) {
	if m.cancelFn != nil {
		return m.cancelFn(ctx, id, c)
	}
	return &domain.Order{ID: id, Status: domain.StatusCancelled, CancelledBy: c.By, CancellationReason: c.Reason}, nil
}

func (m *mockRepository) UpdateRefund(ctx context.Context, id string, status domain.RefundStatus, refundID string) error {
	if m.updateRefundFn != nil {
		return m.updateRefundFn(ctx, id, status, refundID)
	}
	return nil
}

func (m *mockRepository) SetDispatch(ctx context.Context, id, otoID string, shipmentPending bool) error {
	if m.setDispatchFn != nil {
		return m.setDispatchFn(ctx, id, otoID, shipmentPending)
	}
	return nil
}

func (m *mockRepository) SetPaymentID(ctx context.Context, id, paymentID string) error {
	if m.setPaymentIDFn != nil {
		return m.setPaymentIDFn(ctx, id, paymentID)
	}
	return nil
}

func (m *mockRepository) RecordCommission(ctx context.Context, id string, amount, rate decimal.Decimal) (bool, error) {
	if m.recordCommissionFn != nil {
		return m.recordCommissionFn(ctx, id, amount, rate)
	}
	return true, nil
}

type mockSessions struct {
	saveFn           func(ctx context.Context, s ports.PaymentSession) (ports.PaymentSession, error)
	getByOrderIDFn   func(ctx context.Context, orderID string) (*ports.PaymentSession, error)
	getByPaymentIDFn func(ctx context.Context, paymentID string) (*ports.PaymentSession, error)
	updateStatusFn   func(ctx context.Context, paymentID string, status payment.Status) error
}

func (m *mockSessions) Save(ctx context.Context, s ports.PaymentSession) (ports.PaymentSession, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, s)
	}
	return s, nil
}

func (m *mockSessions) GetByOrderID(ctx context.Context, orderID string) (*ports.PaymentSession, error) {
	if m.getByOrderIDFn != nil {
		return m.getByOrderIDFn(ctx, orderID)
	}
	return nil, ports.ErrSessionNotFound
}

func (m *mockSessions) GetByPaymentID(ctx context.Context, paymentID string) (*ports.PaymentSession, error) {
	if m.getByPaymentIDFn != nil {
		return m.getByPaymentIDFn(ctx, paymentID)
	}
	return nil, ports.ErrSessionNotFound
}

func (m *mockSessions) UpdateStatus(ctx context.Context, paymentID string, status payment.Status) error {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, paymentID, status)
	}
	return nil
}

type mockClaims struct {
	claimFn   func(ctx context.Context, orderID string) (bool, error)
	released  []string
	releaseMu sync.Mutex
}

func (m *mockClaims) Claim(ctx context.Context, orderID string) (bool, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, orderID)
	}
	return true, nil
}

func (m *mockClaims) Release(ctx context.Context, orderID string) error {
	m.releaseMu.Lock()
	defer m.releaseMu.Unlock()
	m.released = append(m.released, orderID)
	return nil
}

type mockBranches struct {
	branches map[string]branches.Branch
}

func (m mockBranches) Lookup(id string) (branches.Branch, error) {
	b, ok := m.branches[id]
	if !ok {
		return branches.Branch{}, branches.ErrUnknownBranch
	}
	return b, nil
}

type mockPayments struct {
	initiateFn func(ctx context.Context, req payment.InitiateRequest) (payment.Session, error)
	statusFn   func(ctx context.Context, paymentID string) (payment.Session, error)
	refundFn   func(ctx context.Context, paymentID string, amount decimal.Decimal) (payment.Refund, error)
	webhookFn  func(header http.Header, body []byte) (payment.WebhookEvent, error)
}

func (m *mockPayments) Provider() string { return "mock" }

func (m *mockPayments) Initiate(ctx context.Context, req payment.InitiateRequest) (payment.Session, error) {
	if m.initiateFn != nil {
		return m.initiateFn(ctx, req)
	}
	return payment.Session{ID: "pay-1", Status: payment.StatusInitiated, Provider: "mock"}, nil
}

func (m *mockPayments) Status(ctx context.Context, paymentID string) (payment.Session, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, paymentID)
	}
	return payment.Session{ID: paymentID, Status: payment.StatusPaid}, nil
}

func (m *mockPayments) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (payment.Refund, error) {
	if m.refundFn != nil {
		return m.refundFn(ctx, paymentID, amount)
	}
	return payment.Refund{ID: "ref-1", Status: payment.StatusRefunded}, nil
}

func (m *mockPayments) ParseWebhook(header http.Header, body []byte) (payment.WebhookEvent, error) {
	if m.webhookFn != nil {
		return m.webhookFn(header, body)
	}
	return payment.WebhookEvent{}, nil
}

type mockPOS struct {
	createOrderFn func(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error)
}

func (m *mockPOS) CreateOrder(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, req)
	}
	return pos.OrderResult{ID: "pos-1"}, nil
}

type mockDelivery struct {
	requestDeliveryFn func(ctx context.Context, req delivery.Request) (delivery.Dispatch, error)
	orderStatusFn     func(ctx context.Context, orderID string) (delivery.Status, error)
	cancelOrderFn     func(ctx context.Context, orderID string) error
}

func (m *mockDelivery) DeliveryOptions(ctx context.Context, branch branches.Branch, city string, coords *branches.Coordinates) ([]delivery.Option, error) {
	return nil, nil
}

func (m *mockDelivery) RequestDelivery(ctx context.Context, req delivery.Request) (delivery.Dispatch, error) {
	if m.requestDeliveryFn != nil {
		return m.requestDeliveryFn(ctx, req)
	}
	return delivery.Dispatch{OtoID: "oto-1"}, nil
}

func (m *mockDelivery) OrderStatus(ctx context.Context, orderID string) (delivery.Status, error) {
	if m.orderStatusFn != nil {
		return m.orderStatusFn(ctx, orderID)
	}
	return delivery.Status{}, nil
}

func (m *mockDelivery) CancelOrder(ctx context.Context, orderID string) error {
	if m.cancelOrderFn != nil {
		return m.cancelOrderFn(ctx, orderID)
	}
	return nil
}

type mockLoyalty struct {
	earnFn func(ctx context.Context, customerID, orderID string, total decimal.Decimal) (int64, error)
}

func (m *mockLoyalty) EarnForOrder(ctx context.Context, customerID, orderID string, total decimal.Decimal) (int64, error) {
	if m.earnFn != nil {
		return m.earnFn(ctx, customerID, orderID, total)
	}
	return 0, nil
}

func (m *mockLoyalty) Redeem(ctx context.Context, customerID string, points int64) (int64, error) {
	return 0, nil
}

func (m *mockLoyalty) Balance(ctx context.Context, customerID string) (loyalty.Balance, error) {
	return loyalty.Balance{CustomerID: customerID}, nil
}

type mockPromotions struct {
	validateFn func(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Quote, error)
	redeemFn   func(ctx context.Context, code string) error
}

func (m *mockPromotions) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Quote, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, code, subtotal)
	}
	return promo.Quote{}, promo.ErrUnknownCode
}

func (m *mockPromotions) Redeem(ctx context.Context, code string) error {
	if m.redeemFn != nil {
		return m.redeemFn(ctx, code)
	}
	return nil
}

type mockEventBus struct {
	mu        sync.Mutex
	placed    []string
	cancelled []string
	changes   []domain.OrderStatus
}

func (m *mockEventBus) PublishOrderPlaced(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, order.ID)
	return nil
}

func (m *mockEventBus) PublishOrderCancelled(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, order.ID)
	return nil
}

func (m *mockEventBus) PublishOrderStatusChanged(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, to)
	return nil
}

// inlineEffects runs every submitted task immediately and remembers its name.
type inlineEffects struct {
	names  []string
	errors []error
}

func (e *inlineEffects) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	e.names = append(e.names, name)
	if err := fn(ctx); err != nil {
		e.errors = append(e.errors, err)
	}
	return true
}

func (e *inlineEffects) ran(name string) bool {
	for _, n := range e.names {
		if n == name {
			return true
		}
	}
	return false
}
