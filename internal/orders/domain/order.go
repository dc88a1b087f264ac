package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/shopspring/decimal"
)

// OrderStatus is the customer-visible lifecycle state of an order.
type OrderStatus string

const (
	StatusPreparing      OrderStatus = "Preparing"
	StatusOnHold         OrderStatus = "On Hold"
	StatusReady          OrderStatus = "Ready"
	StatusOutForDelivery OrderStatus = "Out for delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
)

// OrderType distinguishes courier delivery from in-store pickup.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

// CancelledBy records which party cancelled the order.
type CancelledBy string

const (
	CancelledByCustomer CancelledBy = "customer"
	CancelledByMerchant CancelledBy = "merchant"
	CancelledBySystem   CancelledBy = "system"
)

// RefundStatus tracks money movement after a cancellation.
type RefundStatus string

const (
	RefundNone          RefundStatus = "none"
	RefundRefunded      RefundStatus = "refunded"
	RefundFailed        RefundStatus = "refund_failed"
	RefundPendingManual RefundStatus = "pending_manual"
)

// CommissionStatus is pending until the order is delivered.
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionSettled CommissionStatus = "settled"
)

// Customization is a chosen option on an item, e.g. size or extra shot.
type Customization struct {
	Group  string          `json:"group"`
	Option string          `json:"option"`
	Price  decimal.Decimal `json:"price"`
}

// Item is a line of the order as priced at checkout.
type Item struct {
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Customizations []Customization `json:"customizations,omitempty"`
}

// PricedUnit is the unit price including every customization.
func (i Item) PricedUnit() decimal.Decimal {
	unit := i.UnitPrice
	for _, c := range i.Customizations {
		unit = unit.Add(c.Price)
	}
	return unit
}

// Address is the delivery destination. Coordinates are optional.
type Address struct {
	Address string   `json:"address"`
	City    string   `json:"city,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// HasCoordinates reports whether both coordinates are known.
func (a *Address) HasCoordinates() bool {
	return a != nil && a.Lat != nil && a.Lng != nil
}

// Customer identifies who placed the order.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Order is the orchestrator's durable record of a placed order.
type Order struct {
	ID              string          `json:"id"`
	Status          OrderStatus     `json:"status"`
	OrderType       OrderType       `json:"orderType"`
	Customer        Customer        `json:"customer"`
	BranchID        string          `json:"branchId"`
	BranchName      string          `json:"branchName"`
	Items           []Item          `json:"items"`
	Total           decimal.Decimal `json:"total"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	Discount        decimal.Decimal `json:"discount"`
	PromoCode       string          `json:"promoCode,omitempty"`
	DeliveryAddress *Address        `json:"deliveryAddress,omitempty"`

	PaymentID  string `json:"paymentId,omitempty"`
	POSOrderID string `json:"posOrderId,omitempty"`
	DemoMode   bool   `json:"demoMode"`
	OtoID      string `json:"otoId,omitempty"`
	// ShipmentPending marks a delivery order that exists at the courier
	// marketplace but whose shipment booking has not succeeded yet.
	ShipmentPending bool `json:"shipmentPending,omitempty"`

	CancellationReason string       `json:"cancellationReason,omitempty"`
	CancelledBy        CancelledBy  `json:"cancelledBy,omitempty"`
	RefundStatus       RefundStatus `json:"refundStatus"`
	RefundID           string       `json:"refundId,omitempty"`

	CommissionAmount decimal.NullDecimal `json:"commissionAmount"`
	CommissionRate   decimal.NullDecimal `json:"commissionRate"`
	CommissionStatus CommissionStatus    `json:"commissionStatus"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the shape of an order before it is persisted.
func (o Order) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if strings.TrimSpace(o.BranchID) == "" {
		return fmt.Errorf("%w: branchId is required", ErrValidation)
	}
	if o.OrderType != OrderTypeDelivery && o.OrderType != OrderTypePickup {
		return fmt.Errorf("%w: orderType must be delivery or pickup", ErrValidation)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range o.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("%w: items[%d].productId is required", ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d].quantity must be positive", ErrValidation, i)
		}
		if item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: items[%d].unitPrice must not be negative", ErrValidation, i)
		}
	}
	if o.OrderType == OrderTypeDelivery && !o.HasDeliveryAddress() {
		return fmt.Errorf("%w: delivery orders require a delivery address", ErrValidation)
	}
	if o.Total.IsNegative() || o.DeliveryFee.IsNegative() {
		return fmt.Errorf("%w: amounts must not be negative", ErrValidation)
	}
	return nil
}

// HasDeliveryAddress reports whether a non-empty street address is present.
func (o Order) HasDeliveryAddress() bool {
	return o.DeliveryAddress != nil && strings.TrimSpace(o.DeliveryAddress.Address) != ""
}

// ShouldDispatch reports whether a courier should be requested for the order.
func (o Order) ShouldDispatch() bool {
	return o.OrderType == OrderTypeDelivery && o.HasDeliveryAddress()
}

// IsTerminal indicates whether the order can no longer change status.
func (o Order) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Age is the wall-clock time elapsed since creation.
func (o Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// Commission returns the stored commission when present. Otherwise it is
// computed from the order amounts at rate and stored reports false.
func (o Order) Commission(rate decimal.Decimal) (amount, appliedRate decimal.Decimal, stored bool) {
	if o.CommissionAmount.Valid {
		appliedRate = rate
		if o.CommissionRate.Valid {
			appliedRate = o.CommissionRate.Decimal
		}
		return o.CommissionAmount.Decimal, appliedRate, true
	}
	return pricing.Commission(o.Total, o.DeliveryFee, rate), rate, false
}
