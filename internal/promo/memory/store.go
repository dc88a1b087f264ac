package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/nooks/internal/promo"
)

// Store holds promo codes in memory.
type Store struct {
	mu    sync.Mutex
	codes map[string]promo.Code
}

// NewStore seeds a store with codes.
func NewStore(codes ...promo.Code) *Store {
	s := &Store{codes: make(map[string]promo.Code, len(codes))}
	for _, code := range codes {
		code.Code = promo.Normalize(code.Code)
		s.codes[code.Code] = code
	}
	return s
}

func (s *Store) Get(_ context.Context, code string) (promo.Code, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[code]
	if !ok {
		return promo.Code{}, promo.ErrUnknownCode
	}
	return stored, nil
}

func (s *Store) Redeem(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[code]
	if !ok {
		return promo.ErrUnknownCode
	}
	if stored.UsageLimit != nil && stored.UsedCount >= *stored.UsageLimit {
		return promo.ErrUsageLimitReached
	}
	stored.UsedCount++
	s.codes[code] = stored
	return nil
}

func (s *Store) Save(_ context.Context, code promo.Code) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code.Code = promo.Normalize(code.Code)
	s.codes[code.Code] = code
	return nil
}
