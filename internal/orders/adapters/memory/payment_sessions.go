package memory

import (
	"context"
	"sync"

	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
)

// PaymentSessions keeps payment sessions keyed by order id.
type PaymentSessions struct {
	mu       sync.RWMutex
	sessions map[string]ports.PaymentSession
}

func NewPaymentSessions() *PaymentSessions {
	return &PaymentSessions{sessions: make(map[string]ports.PaymentSession)}
}

func (s *PaymentSessions) Save(_ context.Context, session ports.PaymentSession) (ports.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.OrderID]; ok {
		if existing.Status == payment.StatusPaid {
			return existing, nil
		}
		session.CommissionAmount = existing.CommissionAmount
		session.CommissionRate = existing.CommissionRate
		session.CreatedAt = existing.CreatedAt
	}
	s.sessions[session.OrderID] = session
	return session, nil
}

func (s *PaymentSessions) GetByOrderID(_ context.Context, orderID string) (*ports.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[orderID]
	if !ok {
		return nil, ports.ErrSessionNotFound
	}
	return &session, nil
}

func (s *PaymentSessions) GetByPaymentID(_ context.Context, paymentID string) (*ports.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.PaymentID == paymentID {
			return &session, nil
		}
	}
	return nil, ports.ErrSessionNotFound
}

func (s *PaymentSessions) UpdateStatus(_ context.Context, paymentID string, status payment.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for orderID, session := range s.sessions {
		if session.PaymentID == paymentID {
			session.Status = status
			s.sessions[orderID] = session
			return nil
		}
	}
	return ports.ErrSessionNotFound
}

var _ ports.PaymentSessionRepository = (*PaymentSessions)(nil)
