// Package checkout is the client side of the ordering flow: it keeps cart
// state, derives the amounts shown to the customer and drives payment and
// order placement against the API exactly once per payment.
package checkout

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dejobratic/nooks/internal/extapi"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/shopspring/decimal"
)

// RequestTimeout bounds every call to the API.
const RequestTimeout = 15 * time.Second

// Client calls the order API.
type Client struct {
	api *extapi.Client
}

// NewClient builds a client for baseURL. A nil transport uses the default one.
func NewClient(baseURL string, transport http.RoundTripper) *Client {
	return &Client{api: extapi.NewClient("nooks-api", baseURL, RequestTimeout, transport)}
}

type eligibilityRequest struct {
	BranchID        string         `json:"branchId"`
	DeliveryAddress domain.Address `json:"deliveryAddress"`
}

// CheckEligibility fails when address cannot be served from branchID.
func (c *Client) CheckEligibility(ctx context.Context, branchID string, address domain.Address) error {
	return c.api.Do(ctx, http.MethodPost, "/api/orders/eligibility",
		eligibilityRequest{BranchID: branchID, DeliveryAddress: address}, nil)
}

type validatePromoRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidatePromo quotes code against subtotal without redeeming it.
func (c *Client) ValidatePromo(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Quote, error) {
	var resp struct {
		Promo promo.Quote `json:"promo"`
	}
	err := c.api.Do(ctx, http.MethodPost, "/api/promo/validate", validatePromoRequest{Code: code, Subtotal: subtotal}, &resp)
	return resp.Promo, err
}

// InitiatePaymentRequest opens a redirect payment for an order id.
type InitiatePaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	OrderID         string          `json:"orderId"`
	SuccessURL      string          `json:"successUrl"`
	CancelURL       string          `json:"cancelUrl,omitempty"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	BranchID        string          `json:"branchId,omitempty"`
	DeliveryAddress *domain.Address `json:"deliveryAddress,omitempty"`
}

// PaymentSession is the provider session returned by the API.
type PaymentSession struct {
	ID       string         `json:"id"`
	URL      string         `json:"url,omitempty"`
	Status   payment.Status `json:"status"`
	Provider string         `json:"provider"`
}

func (c *Client) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (PaymentSession, error) {
	var session PaymentSession
	err := c.api.Do(ctx, http.MethodPost, "/api/payment/initiate", req, &session)
	return session, err
}

// PaymentStatus reads the live provider status of paymentID.
func (c *Client) PaymentStatus(ctx context.Context, paymentID string) (PaymentSession, error) {
	var session PaymentSession
	err := c.api.Do(ctx, http.MethodGet, "/api/payment/"+url.PathEscape(paymentID)+"/status", nil, &session)
	return session, err
}

// PlaceOrderRequest finalises a paid checkout.
type PlaceOrderRequest struct {
	OrderID         string           `json:"orderId"`
	PaymentID       string           `json:"paymentId"`
	Customer        domain.Customer  `json:"customer"`
	BranchID        string           `json:"branchId"`
	OrderType       domain.OrderType `json:"orderType"`
	Items           []domain.Item    `json:"items"`
	DeliveryFee     decimal.Decimal  `json:"deliveryFee"`
	PromoCode       string           `json:"promoCode,omitempty"`
	DeliveryAddress *domain.Address  `json:"deliveryAddress,omitempty"`
}

// PlacedOrder is the API answer to PlaceOrder. Duplicate is set when the
// order id had already been placed.
type PlacedOrder struct {
	Order     domain.Order `json:"order"`
	Duplicate bool         `json:"duplicate"`
}

func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlacedOrder, error) {
	var placed PlacedOrder
	err := c.api.Do(ctx, http.MethodPost, "/api/orders", req, &placed)
	return placed, err
}

// OrderStatus is the customer-facing status view.
type OrderStatus struct {
	OrderID             string              `json:"orderId"`
	Status              domain.OrderStatus  `json:"status"`
	CanHold             bool                `json:"canHold"`
	CanCustomerCancel   bool                `json:"canCustomerCancel"`
	CancelTimeRemaining int64               `json:"cancelTimeRemaining"`
	RefundStatus        domain.RefundStatus `json:"refundStatus"`
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	var status OrderStatus
	err := c.api.Do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(orderID)+"/status", nil, &status)
	return status, err
}

// CancelOrder asks for a customer cancellation inside the cancel window.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (domain.RefundStatus, error) {
	var resp struct {
		RefundStatus domain.RefundStatus `json:"refundStatus"`
	}
	err := c.api.Do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(orderID)+"/customer-cancel", nil, &resp)
	return resp.RefundStatus, err
}
