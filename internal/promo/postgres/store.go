package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/nooks/internal/promo"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Get(ctx context.Context, code string) (promo.Code, error) {
	query := `
		SELECT code, type, value, valid_from, valid_to, usage_limit, used_count, active
		FROM promo_codes
		WHERE code = $1
	`

	var c promo.Code
	err := s.pool.QueryRow(ctx, query, code).Scan(
		&c.Code,
		&c.Type,
		&c.Value,
		&c.ValidFrom,
		&c.ValidTo,
		&c.UsageLimit,
		&c.UsedCount,
		&c.Active,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return promo.Code{}, promo.ErrUnknownCode
	}
	if err != nil {
		return promo.Code{}, fmt.Errorf("select promo code: %w", err)
	}
	return c, nil
}

func (s *Store) Redeem(ctx context.Context, code string) error {
	query := `
		UPDATE promo_codes
		SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`

	tag, err := s.pool.Exec(ctx, query, code)
	if err != nil {
		return fmt.Errorf("update promo usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.Get(ctx, code); err != nil {
			return err
		}
		return promo.ErrUsageLimitReached
	}
	return nil
}

func (s *Store) Save(ctx context.Context, c promo.Code) error {
	query := `
		INSERT INTO promo_codes (code, type, value, valid_from, valid_to, usage_limit, used_count, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			type = EXCLUDED.type,
			value = EXCLUDED.value,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			usage_limit = EXCLUDED.usage_limit,
			active = EXCLUDED.active
	`

	_, err := s.pool.Exec(ctx, query,
		promo.Normalize(c.Code), c.Type, c.Value, c.ValidFrom, c.ValidTo, c.UsageLimit, c.UsedCount, c.Active,
	)
	if err != nil {
		return fmt.Errorf("upsert promo code: %w", err)
	}
	return nil
}
