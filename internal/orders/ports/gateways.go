package ports

import (
	"context"
	"net/http"

	"github.com/dejobratic/nooks/internal/branches"
	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/loyalty"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/pos"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/shopspring/decimal"
)

type PaymentGateway interface {
	Provider() string
	Initiate(ctx context.Context, req payment.InitiateRequest) (payment.Session, error)
	Status(ctx context.Context, paymentID string) (payment.Session, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (payment.Refund, error)
	ParseWebhook(header http.Header, body []byte) (payment.WebhookEvent, error)
}

type POSGateway interface {
	CreateOrder(ctx context.Context, req pos.OrderRequest) (pos.OrderResult, error)
}

type DeliveryGateway interface {
	DeliveryOptions(ctx context.Context, branch branches.Branch, city string, coords *branches.Coordinates) ([]delivery.Option, error)
	RequestDelivery(ctx context.Context, req delivery.Request) (delivery.Dispatch, error)
	OrderStatus(ctx context.Context, orderID string) (delivery.Status, error)
	CancelOrder(ctx context.Context, orderID string) error
}

type BranchDirectory interface {
	Lookup(id string) (branches.Branch, error)
}

type LoyaltyLedger interface {
	EarnForOrder(ctx context.Context, customerID, orderID string, total decimal.Decimal) (int64, error)
	Redeem(ctx context.Context, customerID string, points int64) (int64, error)
	Balance(ctx context.Context, customerID string) (loyalty.Balance, error)
}

type Promotions interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Quote, error)
	Redeem(ctx context.Context, code string) error
}

// CheckoutClaims grants one checkout per order id.
type CheckoutClaims interface {
	Claim(ctx context.Context, orderID string) (bool, error)
	Release(ctx context.Context, orderID string) error
}

// SideEffects runs best-effort work detached from the request. Submit reports
// false when the task was dropped.
type SideEffects interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context) error) bool
}
