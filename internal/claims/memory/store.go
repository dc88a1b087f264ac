package memory

import (
	"context"
	"sync"
)

// Store keeps checkout claims in process memory.
type Store struct {
	mu     sync.Mutex
	claims map[string]struct{}
}

// NewStore creates an empty claim store.
func NewStore() *Store {
	return &Store{claims: make(map[string]struct{})}
}

// Claim reports whether the caller is the first to claim orderID.
func (s *Store) Claim(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.claims[orderID]; taken {
		return false, nil
	}
	s.claims[orderID] = struct{}{}
	return true, nil
}

// Release frees orderID so a later checkout may claim it again.
func (s *Store) Release(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, orderID)
	return nil
}
