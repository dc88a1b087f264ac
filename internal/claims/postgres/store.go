package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dejobratic/nooks/internal/claims"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists checkout claims in the checkout_claims table. A claim older
// than the ttl is stale and may be taken over.
type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewStore builds a Store. A non-positive ttl uses claims.DefaultTTL.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = claims.DefaultTTL
	}
	return &Store{pool: pool, ttl: ttl}
}

func (s *Store) Claim(ctx context.Context, orderID string) (bool, error) {
	query := `
		INSERT INTO checkout_claims (order_id)
		VALUES ($1)
		ON CONFLICT (order_id) DO UPDATE SET created_at = NOW()
		WHERE checkout_claims.created_at < NOW() - $2::BIGINT * INTERVAL '1 microsecond'
	`

	tag, err := s.pool.Exec(ctx, query, orderID, s.ttl.Microseconds())
	if err != nil {
		return false, fmt.Errorf("insert checkout claim: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *Store) Release(ctx context.Context, orderID string) error {
	query := `DELETE FROM checkout_claims WHERE order_id = $1`

	if _, err := s.pool.Exec(ctx, query, orderID); err != nil {
		return fmt.Errorf("delete checkout claim: %w", err)
	}

	return nil
}
