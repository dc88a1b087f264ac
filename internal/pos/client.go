// Package pos creates orders in the merchant's Foodics point-of-sale.
package pos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/extapi"
	"github.com/dejobratic/nooks/internal/tokencache"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.foodics.com"

var (
	ErrNotConfigured = errors.New("pos: integration not configured")
	ErrToken         = errors.New("pos: access token unavailable")
)

// IsNonFatal reports whether err means the POS integration is absent or
// misconfigured rather than a genuine rejection of the order. Checkout
// continues in demo mode for these.
func IsNonFatal(err error) bool {
	return errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrToken) ||
		extapi.IsUnauthorized(err)
}

// Config holds POS credentials. Either a static AccessToken or an OAuth
// client-credentials pair may be set.
type Config struct {
	BaseURL      string
	AccessToken  string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

func (c Config) configured() bool {
	return strings.TrimSpace(c.AccessToken) != "" ||
		(strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != "")
}

// Option is a menu customization as the POS knows it.
type Option struct {
	ID    string          `json:"modifier_option_id"`
	Price decimal.Decimal `json:"unit_price"`
}

// Item is an order line.
type Item struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Options   []Option        `json:"options,omitempty"`
}

// Address is the delivery destination sent to the POS.
type Address struct {
	Description string   `json:"description"`
	City        string   `json:"city,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// OrderRequest is the order to create. OrderID is the platform order id and
// doubles as the idempotency key.
type OrderRequest struct {
	OrderID       string
	BranchID      string
	Delivery      bool
	Items         []Item
	Address       *Address
	Discount      decimal.Decimal
	CustomerName  string
	CustomerPhone string
}

// OrderResult identifies the order in the POS.
type OrderResult struct {
	ID        string
	Reference string
}

// Client talks to the POS API.
type Client struct {
	cfg    Config
	api    *extapi.Client
	clock  clock.Clock
	tokens *tokencache.Cache
}

// NewClient builds a Client. An unconfigured client is valid; every call then
// returns ErrNotConfigured.
func NewClient(cfg Config, transport http.RoundTripper, clk clock.Clock) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if clk == nil {
		clk = clock.Real()
	}
	c := &Client{
		cfg:   cfg,
		api:   extapi.NewClient("foodics", cfg.BaseURL, cfg.Timeout, transport),
		clock: clk,
	}
	c.tokens = tokencache.New(c.fetchToken, tokencache.WithClock(clk))
	return c
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.configured()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (tokencache.Token, error) {
	if c.cfg.AccessToken != "" {
		return tokencache.Token{Value: c.cfg.AccessToken, ExpiresAt: c.clock.Now().Add(24 * time.Hour)}, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	var resp tokenResponse
	if err := c.api.Do(ctx, http.MethodPost, "/oauth/token", nil, &resp, extapi.WithForm(form)); err != nil {
		return tokencache.Token{}, err
	}
	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return tokencache.Token{Value: resp.AccessToken, ExpiresAt: c.clock.Now().Add(expiresIn)}, nil
}

type createOrderBody struct {
	BranchID       string           `json:"branch_id"`
	Type           int              `json:"type"`
	Reference      string           `json:"reference"`
	Products       []Item           `json:"products"`
	DiscountAmount *decimal.Decimal `json:"discount_amount,omitempty"`
	Address        *Address         `json:"customer_address,omitempty"`
	CustomerName   string           `json:"customer_name,omitempty"`
	CustomerPhone  string           `json:"customer_phone,omitempty"`
}

type createOrderResponse struct {
	Data struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
	} `json:"data"`
}

const (
	orderTypePickup   = 2
	orderTypeDelivery = 3
)

// CreateOrder creates req in the POS.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if !c.Configured() {
		return OrderResult{}, ErrNotConfigured
	}

	token, err := c.tokens.Get(ctx)
	if err != nil {
		return OrderResult{}, fmt.Errorf("%w: %v", ErrToken, err)
	}

	body := createOrderBody{
		BranchID:      req.BranchID,
		Type:          orderTypePickup,
		Reference:     req.OrderID,
		Products:      req.Items,
		Address:       req.Address,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	}
	if req.Delivery {
		body.Type = orderTypeDelivery
	}
	if req.Discount.IsPositive() {
		body.DiscountAmount = &req.Discount
	}

	var resp createOrderResponse
	err = c.api.Do(ctx, http.MethodPost, "/v5/orders", body, &resp,
		extapi.WithBearer(token),
		extapi.WithHeader("Idempotency-Key", req.OrderID),
	)
	if err != nil {
		if extapi.IsUnauthorized(err) {
			c.tokens.Invalidate()
		}
		return OrderResult{}, err
	}

	return OrderResult{ID: resp.Data.ID, Reference: resp.Data.Reference}, nil
}
