// Package loyalty keeps a per-customer points ledger. Customers earn one point
// per whole SAR of an order total, at most once per order.
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientPoints = errors.New("insufficient loyalty points")
	ErrInvalidPoints      = errors.New("points must be positive")
	ErrCustomerRequired   = errors.New("customer id is required")
)

// Balance is a customer's spendable points and everything ever earned.
type Balance struct {
	CustomerID     string `json:"customerId"`
	Points         int64  `json:"points"`
	LifetimePoints int64  `json:"lifetimePoints"`
}

// Store is the persistence behind the ledger.
type Store interface {
	// Earn credits points for orderID. It reports false when the order was
	// already credited.
	Earn(ctx context.Context, customerID, orderID string, points int64) (bool, error)
	// Redeem debits points and returns the remaining balance.
	Redeem(ctx context.Context, customerID string, points int64) (int64, error)
	// Balance returns a zero Balance for customers with no ledger entries.
	Balance(ctx context.Context, customerID string) (Balance, error)
}

// PointsFor converts an order total into points.
func PointsFor(total decimal.Decimal) int64 {
	if !total.IsPositive() {
		return 0
	}
	return total.Floor().IntPart()
}

// Service applies the earning rule on top of a Store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// EarnForOrder credits the customer for an order total. Anonymous customers
// and zero-point orders are skipped.
func (s *Service) EarnForOrder(ctx context.Context, customerID, orderID string, total decimal.Decimal) (int64, error) {
	points := PointsFor(total)
	if strings.TrimSpace(customerID) == "" || points == 0 {
		return 0, nil
	}

	credited, err := s.store.Earn(ctx, customerID, orderID, points)
	if err != nil {
		return 0, fmt.Errorf("earn loyalty points: %w", err)
	}
	if !credited {
		return 0, nil
	}
	return points, nil
}

// Redeem debits points from the customer balance.
func (s *Service) Redeem(ctx context.Context, customerID string, points int64) (int64, error) {
	if strings.TrimSpace(customerID) == "" {
		return 0, ErrCustomerRequired
	}
	if points <= 0 {
		return 0, ErrInvalidPoints
	}
	return s.store.Redeem(ctx, customerID, points)
}

// Balance returns the customer's current points.
func (s *Service) Balance(ctx context.Context, customerID string) (Balance, error) {
	if strings.TrimSpace(customerID) == "" {
		return Balance{}, ErrCustomerRequired
	}
	return s.store.Balance(ctx, customerID)
}
