// Package promo validates and redeems promotional discount codes.
package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/pricing"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCode       = errors.New("promo code not found")
	ErrInactive          = errors.New("promo code is inactive")
	ErrNotYetValid       = errors.New("promo code is not valid yet")
	ErrExpired           = errors.New("promo code has expired")
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
	ErrInvalidSubtotal   = errors.New("subtotal must not be negative")
)

// Type selects how Value is interpreted.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeAmount     Type = "amount"
)

// Code is a promotional code. For TypePercentage, Value is a percent (10 means
// 10%); for TypeAmount it is a fixed SAR amount.
type Code struct {
	Code       string          `json:"code"`
	Type       Type            `json:"type"`
	Value      decimal.Decimal `json:"value"`
	ValidFrom  *time.Time      `json:"validFrom,omitempty"`
	ValidTo    *time.Time      `json:"validTo,omitempty"`
	UsageLimit *int            `json:"usageLimit,omitempty"`
	UsedCount  int             `json:"usedCount"`
	Active     bool            `json:"active"`
}

// Normalize canonicalises user-entered codes.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the code against now and returns the discount it grants on
// subtotal. The discount is never negative and never exceeds subtotal.
func (c Code) Validate(now time.Time, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if subtotal.IsNegative() {
		return decimal.Zero, ErrInvalidSubtotal
	}
	switch {
	case !c.Active:
		return decimal.Zero, ErrInactive
	case c.ValidFrom != nil && now.Before(*c.ValidFrom):
		return decimal.Zero, ErrNotYetValid
	case c.ValidTo != nil && now.After(*c.ValidTo):
		return decimal.Zero, ErrExpired
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return decimal.Zero, ErrUsageLimitReached
	}
	return c.Discount(subtotal), nil
}

// Discount computes the discount for subtotal without checking validity.
func (c Code) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.Type {
	case TypePercentage:
		discount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	default:
		discount = c.Value
	}
	discount = decimal.Min(discount, subtotal)
	if discount.IsNegative() {
		return decimal.Zero
	}
	return pricing.Round2(discount)
}

// Store persists codes.
type Store interface {
	// Get returns ErrUnknownCode when the code does not exist.
	Get(ctx context.Context, code string) (Code, error)
	// Redeem increments the usage count unless the limit has been reached,
	// in which case it returns ErrUsageLimitReached.
	Redeem(ctx context.Context, code string) error
	Save(ctx context.Context, code Code) error
}

// Quote is the outcome of validating a code against a subtotal.
type Quote struct {
	Code     string          `json:"code"`
	Type     Type            `json:"type"`
	Value    decimal.Decimal `json:"value"`
	Discount decimal.Decimal `json:"discount"`
}

// Service validates and redeems codes.
type Service struct {
	store Store
	clock clock.Clock
}

func NewService(store Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{store: store, clock: clk}
}

// Validate resolves code and computes its discount on subtotal.
func (s *Service) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (Quote, error) {
	normalized := Normalize(code)
	if normalized == "" {
		return Quote{}, ErrUnknownCode
	}

	stored, err := s.store.Get(ctx, normalized)
	if err != nil {
		return Quote{}, err
	}

	discount, err := stored.Validate(s.clock.Now(), subtotal)
	if err != nil {
		return Quote{}, err
	}

	return Quote{Code: stored.Code, Type: stored.Type, Value: stored.Value, Discount: discount}, nil
}

// Redeem records one use of code.
func (s *Service) Redeem(ctx context.Context, code string) error {
	normalized := Normalize(code)
	if normalized == "" {
		return nil
	}
	if err := s.store.Redeem(ctx, normalized); err != nil {
		return fmt.Errorf("redeem promo %s: %w", normalized, err)
	}
	return nil
}
