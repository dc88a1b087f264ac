package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `
	order_id, payment_id, provider, amount, delivery_fee,
	commission_amount, commission_rate, status, created_at, updated_at`

// PaymentSessions stores one payment session per order. The commission
// written by the first Save is never overwritten, and a paid session is never
// replaced.
type PaymentSessions struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

func NewPaymentSessions(pool *pgxpool.Pool, clk clock.Clock) *PaymentSessions {
	if clk == nil {
		clk = clock.Real()
	}
	return &PaymentSessions{pool: pool, clock: clk}
}

func (s *PaymentSessions) Save(ctx context.Context, session ports.PaymentSession) (ports.PaymentSession, error) {
	query := `
		INSERT INTO payment_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (order_id) DO UPDATE SET
			payment_id = EXCLUDED.payment_id,
			provider = EXCLUDED.provider,
			amount = EXCLUDED.amount,
			delivery_fee = EXCLUDED.delivery_fee,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE payment_sessions.status <> $10
		RETURNING` + sessionColumns

	now := s.clock.Now().UTC()
	stored, err := scanSession(s.pool.QueryRow(ctx, query,
		session.OrderID,
		session.PaymentID,
		session.Provider,
		session.Amount,
		session.DeliveryFee,
		session.CommissionAmount,
		session.CommissionRate,
		session.Status,
		now,
		payment.StatusPaid,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		paid, getErr := s.GetByOrderID(ctx, session.OrderID)
		if getErr != nil {
			return ports.PaymentSession{}, getErr
		}
		return *paid, nil
	}
	if err != nil {
		return ports.PaymentSession{}, fmt.Errorf("upsert payment session: %w", err)
	}
	return stored, nil
}

func (s *PaymentSessions) GetByOrderID(ctx context.Context, orderID string) (*ports.PaymentSession, error) {
	return s.getOne(ctx, `SELECT`+sessionColumns+` FROM payment_sessions WHERE order_id = $1`, orderID)
}

func (s *PaymentSessions) GetByPaymentID(ctx context.Context, paymentID string) (*ports.PaymentSession, error) {
	return s.getOne(ctx, `SELECT`+sessionColumns+` FROM payment_sessions WHERE payment_id = $1`, paymentID)
}

func (s *PaymentSessions) UpdateStatus(ctx context.Context, paymentID string, status payment.Status) error {
	query := `UPDATE payment_sessions SET status = $1, updated_at = $2 WHERE payment_id = $3`

	tag, err := s.pool.Exec(ctx, query, status, s.clock.Now().UTC(), paymentID)
	if err != nil {
		return fmt.Errorf("update payment session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrSessionNotFound
	}
	return nil
}

func (s *PaymentSessions) getOne(ctx context.Context, query, arg string) (*ports.PaymentSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrSessionNotFound
		}
		return nil, fmt.Errorf("select payment session: %w", err)
	}
	return &session, nil
}

func scanSession(row pgx.Row) (ports.PaymentSession, error) {
	var session ports.PaymentSession
	err := row.Scan(
		&session.OrderID,
		&session.PaymentID,
		&session.Provider,
		&session.Amount,
		&session.DeliveryFee,
		&session.CommissionAmount,
		&session.CommissionRate,
		&session.Status,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	return session, err
}

var _ ports.PaymentSessionRepository = (*PaymentSessions)(nil)
