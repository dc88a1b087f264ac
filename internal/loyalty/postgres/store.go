package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/nooks/internal/loyalty"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps the ledger in loyalty_entries with a running total in
// loyalty_balances.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Earn(ctx context.Context, customerID, orderID string, points int64) (bool, error) {
	credited := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO loyalty_entries (customer_id, order_id, kind, points)
			VALUES ($1, $2, 'earn', $3)
			ON CONFLICT (order_id, kind) DO NOTHING
		`, customerID, orderID, points)
		if err != nil {
			return fmt.Errorf("insert loyalty entry: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO loyalty_balances (customer_id, points, lifetime_points, updated_at)
			VALUES ($1, $2, $2, NOW())
			ON CONFLICT (customer_id) DO UPDATE
			SET points = loyalty_balances.points + EXCLUDED.points,
			    lifetime_points = loyalty_balances.lifetime_points + EXCLUDED.points,
			    updated_at = NOW()
		`, customerID, points)
		if err != nil {
			return fmt.Errorf("upsert loyalty balance: %w", err)
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}

func (s *Store) Redeem(ctx context.Context, customerID string, points int64) (int64, error) {
	var remaining int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE loyalty_balances
			SET points = points - $2, updated_at = NOW()
			WHERE customer_id = $1 AND points >= $2
			RETURNING points
		`, customerID, points).Scan(&remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.ErrInsufficientPoints
		}
		if err != nil {
			return fmt.Errorf("debit loyalty balance: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO loyalty_entries (customer_id, kind, points)
			VALUES ($1, 'redeem', $2)
		`, customerID, -points)
		if err != nil {
			return fmt.Errorf("insert loyalty entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *Store) Balance(ctx context.Context, customerID string) (loyalty.Balance, error) {
	balance := loyalty.Balance{CustomerID: customerID}
	err := s.pool.QueryRow(ctx, `
		SELECT points, lifetime_points
		FROM loyalty_balances
		WHERE customer_id = $1
	`, customerID).Scan(&balance.Points, &balance.LifetimePoints)
	if errors.Is(err, pgx.ErrNoRows) {
		return balance, nil
	}
	if err != nil {
		return loyalty.Balance{}, fmt.Errorf("select loyalty balance: %w", err)
	}
	return balance, nil
}
