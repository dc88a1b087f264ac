// Package delivery dispatches delivery orders to the OTO courier aggregator
// and decides whether a branch can serve an address.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dejobratic/nooks/internal/branches"
	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/extapi"
	"github.com/dejobratic/nooks/internal/tokencache"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.tryoto.com"

var (
	ErrNotConfigured = errors.New("delivery: integration not configured")
	ErrNoOptions     = errors.New("delivery: no delivery options for route")
	ErrRejected      = errors.New("delivery: request rejected")
)

// Config holds OTO credentials.
type Config struct {
	BaseURL            string
	RefreshToken       string
	PickupLocationCode string
	WebhookSecret      string
	Timeout            time.Duration
}

// Option is a courier offer for a route.
type Option struct {
	ID            string          `json:"deliveryOptionId"`
	Company       string          `json:"deliveryCompanyName"`
	Price         decimal.Decimal `json:"price"`
	EstimatedTime string          `json:"avgDeliveryTime,omitempty"`
}

// Customer is the delivery recipient.
type Customer struct {
	Name  string
	Phone string
	Email string
}

// Item is a shipment line.
type Item struct {
	Name     string
	SKU      string
	Quantity int
	Price    decimal.Decimal
}

// Request is a dispatch request for one order.
type Request struct {
	OrderID     string
	Amount      decimal.Decimal
	Customer    Customer
	Address     string
	City        string
	Coords      *branches.Coordinates
	Branch      branches.Branch
	Items       []Item
	PaymentPaid bool
	// OtoID resumes a dispatch whose delivery order was created but whose
	// shipment was never booked. The delivery order is not created again.
	OtoID string
}

// Dispatch identifies a created delivery.
type Dispatch struct {
	OtoID            string
	DeliveryOptionID string
	Company          string
	TrackingNumber   string
}

// Status is the courier view of a delivery.
type Status struct {
	OtoID          string `json:"otoId"`
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

// Client talks to the OTO API.
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
		api:   extapi.NewClient("oto", cfg.BaseURL, cfg.Timeout, transport),
		clock: clk,
	}
	c.tokens = tokencache.New(c.refreshAccessToken, tokencache.WithClock(clk))
	return c
}

// Configured reports whether a refresh token is present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.RefreshToken) != ""
}

// WebhookSecret is the shared secret expected on status callbacks.
func (c *Client) WebhookSecret() string {
	return c.cfg.WebhookSecret
}

type refreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) refreshAccessToken(ctx context.Context) (tokencache.Token, error) {
	var resp refreshResponse
	body := map[string]string{"refresh_token": c.cfg.RefreshToken}
	if err := c.api.Do(ctx, http.MethodPost, "/rest/v2/refreshToken", body, &resp); err != nil {
		return tokencache.Token{}, err
	}
	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return tokencache.Token{Value: resp.AccessToken, ExpiresAt: c.clock.Now().Add(expiresIn)}, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, opts ...extapi.RequestOption) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("delivery: access token: %w", err)
	}

	err = c.api.Do(ctx, method, path, body, out, append(opts, extapi.WithBearer(token))...)
	if extapi.IsUnauthorized(err) {
		c.tokens.Invalidate()
	}
	return err
}

type feeRequest struct {
	OriginCity      string   `json:"originCity"`
	DestinationCity string   `json:"destinationCity"`
	OriginLat       *float64 `json:"originLat,omitempty"`
	OriginLon       *float64 `json:"originLon,omitempty"`
	DestinationLat  *float64 `json:"destinationLat,omitempty"`
	DestinationLon  *float64 `json:"destinationLon,omitempty"`
	Weight          float64  `json:"weight"`
}

type feeResponse struct {
	Success         bool     `json:"success"`
	DeliveryCompany []Option `json:"deliveryCompany"`
}

// DeliveryOptions lists courier offers between the branch and destination.
// Missing coordinates fall back to the city centre.
func (c *Client) DeliveryOptions(ctx context.Context, branch branches.Branch, city string, coords *branches.Coordinates) ([]Option, error) {
	req := feeRequest{
		OriginCity:      branch.City,
		DestinationCity: city,
		Weight:          1,
	}
	if origin, ok := branch.Origin(); ok {
		req.OriginLat, req.OriginLon = &origin.Lat, &origin.Lng
	}
	destination := coords
	if destination == nil {
		if center, ok := branches.CityCenter(city); ok {
			destination = &center
		}
	}
	if destination != nil {
		req.DestinationLat, req.DestinationLon = &destination.Lat, &destination.Lng
	}

	var resp feeResponse
	if err := c.call(ctx, http.MethodPost, "/rest/v2/checkDeliveryFee", req, &resp); err != nil {
		return nil, err
	}
	return resp.DeliveryCompany, nil
}

type createOrderBody struct {
	OrderID            string          `json:"orderId"`
	PickupLocationCode string          `json:"pickupLocationCode,omitempty"`
	DeliveryOptionID   string          `json:"deliveryOptionId"`
	PaymentMethod      string          `json:"payment_method"`
	Amount             decimal.Decimal `json:"amount"`
	AmountDue          decimal.Decimal `json:"amount_due"`
	Currency           string          `json:"currency"`
	Customer           otoCustomer     `json:"customer"`
	Items              []otoItem       `json:"items"`
}

type otoCustomer struct {
	Name    string   `json:"name"`
	Mobile  string   `json:"mobile"`
	Email   string   `json:"email,omitempty"`
	Address string   `json:"address"`
	City    string   `json:"city"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

type otoItem struct {
	Name     string          `json:"name"`
	SKU      string          `json:"sku,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type createOrderResponse struct {
	Success bool            `json:"success"`
	OtoID   json.RawMessage `json:"otoId"`
	Message string          `json:"message"`
}

type createShipmentResponse struct {
	Success        bool   `json:"success"`
	TrackingNumber string `json:"trackingNumber"`
	Message        string `json:"message"`
}

// RequestDelivery picks the first courier offer for the route, creates the
// delivery order and books the shipment. When the shipment fails after the
// delivery order exists, the returned Dispatch still carries its OtoID so the
// caller can record it and resume with Request.OtoID.
func (c *Client) RequestDelivery(ctx context.Context, req Request) (Dispatch, error) {
	options, err := c.DeliveryOptions(ctx, req.Branch, req.City, req.Coords)
	if err != nil {
		return Dispatch{}, fmt.Errorf("delivery options: %w", err)
	}
	if len(options) == 0 {
		return Dispatch{}, ErrNoOptions
	}
	chosen := options[0]

	dispatch := Dispatch{OtoID: req.OtoID, DeliveryOptionID: chosen.ID, Company: chosen.Company}
	if dispatch.OtoID == "" {
		otoID, err := c.createOrder(ctx, req, chosen)
		if err != nil {
			return Dispatch{}, err
		}
		dispatch.OtoID = otoID
	}

	var shipment createShipmentResponse
	shipmentBody := map[string]string{"orderId": req.OrderID, "deliveryOptionId": chosen.ID}
	if err := c.call(ctx, http.MethodPost, "/rest/v2/createShipment", shipmentBody, &shipment); err != nil {
		return dispatch, fmt.Errorf("create shipment: %w", err)
	}
	if !shipment.Success {
		return dispatch, fmt.Errorf("%w: %s", ErrRejected, shipment.Message)
	}
	dispatch.TrackingNumber = shipment.TrackingNumber
	return dispatch, nil
}

func (c *Client) createOrder(ctx context.Context, req Request, chosen Option) (string, error) {
	body := createOrderBody{
		OrderID:            req.OrderID,
		PickupLocationCode: c.pickupLocation(req.Branch),
		DeliveryOptionID:   chosen.ID,
		PaymentMethod:      "paid",
		Amount:             req.Amount,
		AmountDue:          decimal.Zero,
		Currency:           "SAR",
		Customer: otoCustomer{
			Name:    req.Customer.Name,
			Mobile:  req.Customer.Phone,
			Email:   req.Customer.Email,
			Address: req.Address,
			City:    req.City,
		},
	}
	if !req.PaymentPaid {
		body.PaymentMethod = "cod"
		body.AmountDue = req.Amount
	}
	if req.Coords != nil {
		body.Customer.Lat, body.Customer.Lon = &req.Coords.Lat, &req.Coords.Lng
	}
	for _, item := range req.Items {
		body.Items = append(body.Items, otoItem(item))
	}

	var created createOrderResponse
	if err := c.call(ctx, http.MethodPost, "/rest/v2/createOrder", body, &created); err != nil {
		return "", fmt.Errorf("create delivery order: %w", err)
	}
	if !created.Success {
		return "", fmt.Errorf("%w: %s", ErrRejected, created.Message)
	}
	return strings.Trim(string(created.OtoID), `"`), nil
}

func (c *Client) pickupLocation(branch branches.Branch) string {
	if c.cfg.PickupLocationCode != "" {
		return c.cfg.PickupLocationCode
	}
	return branch.ID
}

// OrderStatus fetches the courier status for a platform order id.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (Status, error) {
	var resp struct {
		Success bool `json:"success"`
		Status
	}
	query := url.Values{"orderId": []string{orderID}}
	if err := c.call(ctx, http.MethodGet, "/rest/v2/orderStatus", nil, &resp, extapi.WithQuery(query)); err != nil {
		return Status{}, err
	}
	return resp.Status, nil
}

// CancelOrder cancels the delivery for a platform order id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.call(ctx, http.MethodPost, "/rest/v2/cancelOrder", map[string]string{"orderId": orderID}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return nil
}
