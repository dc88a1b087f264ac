package app

import (
	"context"
	"log/slog"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/orders/app/commands"
	"github.com/dejobratic/nooks/internal/orders/app/queries"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/metrics"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/shopspring/decimal"
)

// Dependencies are the adapters the order use cases run against.
type Dependencies struct {
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
	CommissionRate decimal.Decimal
	MinChargeMinor int64
}

// Service bundles use cases for handling orders via the API.
type Service struct {
	placeOrder       commands.PlaceOrderHandler
	initiatePayment  *commands.InitiatePaymentCommandHandler
	checkEligibility *commands.CheckEligibilityCommandHandler
	hold             *commands.HoldOrderCommandHandler
	resume           *commands.ResumeOrderCommandHandler
	customerCancel   *commands.CustomerCancelCommandHandler
	merchantCancel   *commands.MerchantCancelCommandHandler
	updateStatus     *commands.UpdateStatusCommandHandler
	syncDispatch     *commands.SyncDispatchCommandHandler
	paymentWebhook   *commands.PaymentWebhookCommandHandler
	requestDelivery  *commands.RequestDeliveryCommandHandler
	recordCommission *commands.RecordCommissionCommandHandler

	getOrder            *queries.GetOrderQueryHandler
	listOrders          *queries.ListOrdersQueryHandler
	getStatus           *queries.GetStatusQueryHandler
	getCommission       *queries.GetCommissionQueryHandler
	calculateCommission *queries.CalculateCommissionQueryHandler
	paymentStatus       *queries.GetPaymentStatusQueryHandler
	deliveryOptions     *queries.DeliveryOptionsQueryHandler
	dispatchStatus      *queries.DispatchStatusQueryHandler

	loyalty        ports.LoyaltyLedger
	promos         ports.Promotions
	commissionRate decimal.Decimal
}

// NewService wires required dependencies.
func NewService(deps Dependencies, logger *slog.Logger, m *metrics.Metrics) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}

	placeOrder := commands.NewPlaceOrderCommandHandler(commands.PlaceOrderDeps{
		Repo:              deps.Repo,
		Sessions:          deps.Sessions,
		Claims:            deps.Claims,
		Branches:          deps.Branches,
		Payments:          deps.Payments,
		POS:               deps.POS,
		Delivery:          deps.Delivery,
		Loyalty:           deps.Loyalty,
		Promotions:        deps.Promotions,
		Events:            deps.Events,
		Effects:           deps.Effects,
		Clock:             deps.Clock,
		Logger:            logger,
		CommissionRate:    deps.CommissionRate,
		MinChargeMinor:    deps.MinChargeMinor,
		OnDispatchFailure: m.RecordDispatchFailure,
	})

	lc := commands.Lifecycle{
		Repo:     deps.Repo,
		Events:   deps.Events,
		Effects:  deps.Effects,
		Payments: deps.Payments,
		Delivery: deps.Delivery,
		Clock:    deps.Clock,
		Logger:   logger,
		OnTransition: func(ctx context.Context, from, to domain.OrderStatus) {
			m.RecordTransition(ctx, string(from), string(to))
		},
		OnRefund: func(ctx context.Context, status domain.RefundStatus) {
			m.RecordRefund(ctx, string(status))
		},
	}

	return &Service{
		placeOrder:       commands.NewObservablePlaceOrderHandler(placeOrder, logger, m),
		initiatePayment:  commands.NewInitiatePaymentCommandHandler(deps.Payments, deps.Sessions, deps.Branches, deps.Clock, logger, deps.CommissionRate),
		checkEligibility: commands.NewCheckEligibilityCommandHandler(deps.Branches),
		hold:             commands.NewHoldOrderCommandHandler(lc),
		resume:           commands.NewResumeOrderCommandHandler(lc),
		customerCancel:   commands.NewCustomerCancelCommandHandler(lc),
		merchantCancel:   commands.NewMerchantCancelCommandHandler(lc),
		updateStatus:     commands.NewUpdateStatusCommandHandler(lc),
		syncDispatch:     commands.NewSyncDispatchCommandHandler(lc),
		paymentWebhook:   commands.NewPaymentWebhookCommandHandler(deps.Payments, deps.Sessions, deps.Repo, logger),
		requestDelivery:  commands.NewRequestDeliveryCommandHandler(deps.Repo, deps.Branches, deps.Delivery),
		recordCommission: commands.NewRecordCommissionCommandHandler(deps.Repo, deps.CommissionRate),

		getOrder:            queries.NewGetOrderQueryHandler(deps.Repo),
		listOrders:          queries.NewListOrdersQueryHandler(deps.Repo),
		getStatus:           queries.NewGetStatusQueryHandler(deps.Repo, deps.Clock),
		getCommission:       queries.NewGetCommissionQueryHandler(deps.Repo, deps.CommissionRate),
		calculateCommission: queries.NewCalculateCommissionQueryHandler(deps.CommissionRate),
		paymentStatus:       queries.NewGetPaymentStatusQueryHandler(deps.Payments, deps.Sessions),
		deliveryOptions:     queries.NewDeliveryOptionsQueryHandler(deps.Branches, deps.Delivery),
		dispatchStatus:      queries.NewDispatchStatusQueryHandler(deps.Delivery),

		loyalty:        deps.Loyalty,
		promos:         deps.Promotions,
		commissionRate: deps.CommissionRate,
	}
}

// PlaceOrder finalises a paid checkout.
func (s *Service) PlaceOrder(ctx context.Context, cmd commands.PlaceOrderCommand) (*commands.PlaceOrderResult, error) {
	return s.placeOrder.Handle(ctx, cmd)
}

// InitiatePayment opens a payment session and fixes the order's commission.
func (s *Service) InitiatePayment(ctx context.Context, cmd commands.InitiatePaymentCommand) (*commands.InitiatePaymentResult, error) {
	return s.initiatePayment.Handle(ctx, cmd)
}

func (s *Service) CheckEligibility(ctx context.Context, cmd commands.CheckEligibilityCommand) error {
	return s.checkEligibility.Handle(ctx, cmd)
}

func (s *Service) Hold(ctx context.Context, id string) (*domain.Order, error) {
	return s.hold.Handle(ctx, commands.HoldOrderCommand{OrderID: id})
}

func (s *Service) Resume(ctx context.Context, id string) (*domain.Order, error) {
	return s.resume.Handle(ctx, commands.ResumeOrderCommand{OrderID: id})
}

func (s *Service) CustomerCancel(ctx context.Context, id string) (*commands.CancelResult, error) {
	return s.customerCancel.Handle(ctx, commands.CustomerCancelCommand{OrderID: id})
}

func (s *Service) MerchantCancel(ctx context.Context, cmd commands.MerchantCancelCommand) (*commands.CancelResult, error) {
	return s.merchantCancel.Handle(ctx, cmd)
}

func (s *Service) UpdateStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	return s.updateStatus.Handle(ctx, commands.UpdateStatusCommand{OrderID: id, Status: status})
}

// SyncDispatch applies a courier status update.
func (s *Service) SyncDispatch(ctx context.Context, cmd commands.SyncDispatchCommand) (*commands.SyncDispatchResult, error) {
	return s.syncDispatch.Handle(ctx, cmd)
}

func (s *Service) HandlePaymentWebhook(ctx context.Context, cmd commands.PaymentWebhookCommand) (payment.WebhookEvent, error) {
	return s.paymentWebhook.Handle(ctx, cmd)
}

// RequestDelivery dispatches a courier for an order that has none.
func (s *Service) RequestDelivery(ctx context.Context, id string) (*domain.Order, error) {
	return s.requestDelivery.Handle(ctx, commands.RequestDeliveryCommand{OrderID: id})
}

func (s *Service) RecordCommission(ctx context.Context, id string) (*queries.CommissionView, error) {
	order, err := s.recordCommission.Handle(ctx, commands.RecordCommissionCommand{OrderID: id})
	if err != nil {
		return nil, err
	}
	view := queries.NewCommissionView(*order, s.commissionRate)
	return &view, nil
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{OrderID: id})
}

// GetOrderByDispatchID finds the order a delivery shipment belongs to.
func (s *Service) GetOrderByDispatchID(ctx context.Context, dispatchID string) (*domain.Order, error) {
	return s.getOrder.Handle(ctx, queries.GetOrderQuery{DispatchID: dispatchID})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, query queries.ListOrdersQuery) ([]domain.Order, error) {
	return s.listOrders.Handle(ctx, query)
}

func (s *Service) GetStatus(ctx context.Context, id string) (*queries.StatusView, error) {
	return s.getStatus.Handle(ctx, queries.GetStatusQuery{OrderID: id})
}

func (s *Service) GetCommission(ctx context.Context, id string) (*queries.CommissionView, error) {
	return s.getCommission.Handle(ctx, queries.GetCommissionQuery{OrderID: id})
}

func (s *Service) CalculateCommission(ctx context.Context, query queries.CalculateCommissionQuery) (*queries.CommissionView, error) {
	return s.calculateCommission.Handle(ctx, query)
}

func (s *Service) PaymentStatus(ctx context.Context, paymentID string) (payment.Session, error) {
	return s.paymentStatus.Handle(ctx, queries.GetPaymentStatusQuery{PaymentID: paymentID})
}

func (s *Service) DeliveryOptions(ctx context.Context, query queries.DeliveryOptionsQuery) ([]delivery.Option, error) {
	return s.deliveryOptions.Handle(ctx, query)
}

func (s *Service) DispatchStatus(ctx context.Context, orderID string) (delivery.Status, error) {
	return s.dispatchStatus.Handle(ctx, queries.DispatchStatusQuery{OrderID: orderID})
}

// Loyalty exposes the ledger to the loyalty endpoints.
func (s *Service) Loyalty() ports.LoyaltyLedger {
	return s.loyalty
}

// Promotions exposes promo validation to the promo endpoint.
func (s *Service) Promotions() ports.Promotions {
	return s.promos
}
