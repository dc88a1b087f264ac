package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const pingTimeout = 2 * time.Second

// CheckHealth pings the pool with a short deadline.
func CheckHealth(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Readiness binds CheckHealth to pool for use as a readiness probe.
func Readiness(pool *pgxpool.Pool) func(context.Context) error {
	return func(ctx context.Context) error {
		return CheckHealth(ctx, pool)
	}
}
