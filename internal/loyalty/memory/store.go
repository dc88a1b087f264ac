package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/nooks/internal/loyalty"
)

// Store is an in-memory loyalty ledger.
type Store struct {
	mu       sync.Mutex
	balances map[string]loyalty.Balance
	credited map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		balances: make(map[string]loyalty.Balance),
		credited: make(map[string]struct{}),
	}
}

func (s *Store) Earn(_ context.Context, customerID, orderID string, points int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.credited[orderID]; done {
		return false, nil
	}
	s.credited[orderID] = struct{}{}
	balance := s.balances[customerID]
	balance.CustomerID = customerID
	balance.Points += points
	balance.LifetimePoints += points
	s.balances[customerID] = balance
	return true, nil
}

func (s *Store) Redeem(_ context.Context, customerID string, points int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balances[customerID]
	if balance.Points < points {
		return balance.Points, loyalty.ErrInsufficientPoints
	}
	balance.Points -= points
	s.balances[customerID] = balance
	return balance.Points, nil
}

func (s *Store) Balance(_ context.Context, customerID string) (loyalty.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.balances[customerID]
	balance.CustomerID = customerID
	return balance, nil
}
