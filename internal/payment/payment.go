// Package payment opens hosted payment sessions with the single configured
// payment provider and normalises its statuses, refunds and webhooks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/shopspring/decimal"
)

// DefaultMinChargeMinor is the smallest amount, in minor units, that providers accept.
const DefaultMinChargeMinor int64 = 100

var (
	ErrNotConfigured     = errors.New("payment: no provider configured")
	ErrMultipleProviders = errors.New("payment: more than one provider configured")
	ErrInvalidRequest    = errors.New("payment: invalid request")
	ErrInvalidSignature  = errors.New("payment: invalid webhook signature")
	ErrNoCapturedPayment = errors.New("payment: no captured payment to refund")
)

// Status is the provider-independent payment state.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// InitiateRequest opens a payment session for one order.
type InitiateRequest struct {
	Amount      decimal.Decimal
	Currency    string
	OrderID     string
	SuccessURL  string
	CancelURL   string
	Description string
}

// Session is a hosted payment session or direct charge.
type Session struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	Status      Status `json:"status"`
	Provider    string `json:"provider"`
	AmountMinor int64  `json:"amountMinor"`
}

// Refund is the outcome of a refund request.
type Refund struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// WebhookEvent is a verified provider callback.
type WebhookEvent struct {
	Provider  string
	PaymentID string
	OrderID   string
	Status    Status
}

// provider is implemented by each payment backend.
type provider interface {
	name() string
	initiate(ctx context.Context, req InitiateRequest, amountMinor int64) (Session, error)
	status(ctx context.Context, paymentID string) (Session, error)
	refund(ctx context.Context, paymentID string, amountMinor int64) (Refund, error)
	parseWebhook(header http.Header, body []byte) (WebhookEvent, error)
}

// Config selects and configures the provider. Exactly one of the secret keys must be set.
type Config struct {
	MoyasarSecretKey     string
	MoyasarWebhookSecret string
	MoyasarBaseURL       string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string

	// RedirectEndpoint is an HTTPS URL that 302-redirects to its "to" query parameter.
	RedirectEndpoint string
	MinChargeMinor   int64
	Timeout          time.Duration
}

// Gateway is the payment initiation adapter.
type Gateway struct {
	provider         provider
	redirectEndpoint string
	minChargeMinor   int64
}

// NewGateway validates cfg and builds the gateway for the one configured provider.
func NewGateway(cfg Config, transport http.RoundTripper, clk clock.Clock) (*Gateway, error) {
	if clk == nil {
		clk = clock.Real()
	}

	hasMoyasar := strings.TrimSpace(cfg.MoyasarSecretKey) != ""
	hasStripe := strings.TrimSpace(cfg.StripeSecretKey) != ""

	var p provider
	switch {
	case hasMoyasar && hasStripe:
		return nil, ErrMultipleProviders
	case hasMoyasar:
		p = newMoyasar(cfg, transport)
	case hasStripe:
		p = newStripe(cfg, transport, clk)
	default:
		return nil, ErrNotConfigured
	}

	minCharge := cfg.MinChargeMinor
	if minCharge <= 0 {
		minCharge = DefaultMinChargeMinor
	}

	return &Gateway{
		provider:         p,
		redirectEndpoint: cfg.RedirectEndpoint,
		minChargeMinor:   minCharge,
	}, nil
}

// Provider returns the configured provider name.
func (g *Gateway) Provider() string {
	return g.provider.name()
}

// Initiate opens a session for req. The amount is floored to minor units and
// raised to the minimum charge; non-HTTPS success URLs are routed through the
// redirect endpoint.
func (g *Gateway) Initiate(ctx context.Context, req InitiateRequest) (Session, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return Session{}, fmt.Errorf("%w: orderId is required", ErrInvalidRequest)
	}
	if !req.Amount.IsPositive() {
		return Session{}, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if req.Currency == "" {
		req.Currency = "SAR"
	}
	req.Currency = strings.ToUpper(req.Currency)

	successURL, err := ResolveSuccessURL(req.SuccessURL, g.redirectEndpoint)
	if err != nil {
		return Session{}, err
	}
	req.SuccessURL = successURL

	if req.CancelURL != "" {
		if req.CancelURL, err = ResolveSuccessURL(req.CancelURL, g.redirectEndpoint); err != nil {
			return Session{}, err
		}
	}

	amountMinor := pricing.ApplyMinimum(pricing.ToMinorUnits(req.Amount), g.minChargeMinor)

	session, err := g.provider.initiate(ctx, req, amountMinor)
	if err != nil {
		return Session{}, fmt.Errorf("initiate %s payment: %w", g.provider.name(), err)
	}
	session.Provider = g.provider.name()
	session.AmountMinor = amountMinor
	return session, nil
}

// Status polls the provider for the current state of a session.
func (g *Gateway) Status(ctx context.Context, paymentID string) (Session, error) {
	session, err := g.provider.status(ctx, paymentID)
	if err != nil {
		return Session{}, fmt.Errorf("get %s payment status: %w", g.provider.name(), err)
	}
	session.Provider = g.provider.name()
	return session, nil
}

// Refund returns amount to the customer for a paid session.
func (g *Gateway) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (Refund, error) {
	if strings.TrimSpace(paymentID) == "" {
		return Refund{}, fmt.Errorf("%w: paymentId is required", ErrInvalidRequest)
	}
	refund, err := g.provider.refund(ctx, paymentID, pricing.ToMinorUnits(amount))
	if err != nil {
		return Refund{}, fmt.Errorf("refund %s payment: %w", g.provider.name(), err)
	}
	return refund, nil
}

// ParseWebhook verifies and normalises a provider callback.
func (g *Gateway) ParseWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	event, err := g.provider.parseWebhook(header, body)
	if err != nil {
		return WebhookEvent{}, err
	}
	event.Provider = g.provider.name()
	return event, nil
}
