package ports

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/nooks/internal/payment"
	"github.com/shopspring/decimal"
)

var ErrSessionNotFound = errors.New("payment session not found")

// PaymentSession is the record of a payment opened for an order, carrying the
// commission fixed at initiation time.
type PaymentSession struct {
	OrderID          string
	PaymentID        string
	Provider         string
	Amount           decimal.Decimal
	DeliveryFee      decimal.Decimal
	CommissionAmount decimal.Decimal
	CommissionRate   decimal.Decimal
	Status           payment.Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type PaymentSessionRepository interface {
	// Save upserts by order id. A commission already stored for the order is
	// kept and a paid session is left untouched; the returned session
	// reflects what is stored.
	Save(ctx context.Context, session PaymentSession) (PaymentSession, error)
	GetByOrderID(ctx context.Context, orderID string) (*PaymentSession, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*PaymentSession, error)
	UpdateStatus(ctx context.Context, paymentID string, status payment.Status) error
}
