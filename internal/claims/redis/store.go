package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dejobratic/nooks/internal/claims"
	goredis "github.com/redis/go-redis/v9"
)

// keyCheckoutClaim is claim:checkout:{order_id} -> "1"
const keyCheckoutClaim = "claim:checkout:%s"

// Store keeps checkout claims in Redis with an expiry.
type Store struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

// NewStore builds a Store. A non-positive ttl uses claims.DefaultTTL.
func NewStore(rdb goredis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = claims.DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Claim(ctx context.Context, orderID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, fmt.Sprintf(keyCheckoutClaim, orderID), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx checkout claim: %w", err)
	}
	return ok, nil
}

func (s *Store) Release(ctx context.Context, orderID string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(keyCheckoutClaim, orderID)).Err(); err != nil {
		return fmt.Errorf("redis del checkout claim: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
