package tokencache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
)

func TestCacheGet(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("reuses token until margin before expiry", func(t *testing.T) {
		fake := clock.NewFake(start)
		calls := 0
		cache := New(func(context.Context) (Token, error) {
			calls++
			return Token{Value: "tok", ExpiresAt: fake.Now().Add(10 * time.Minute)}, nil
		}, WithClock(fake), WithMargin(time.Minute))

		for i := 0; i < 3; i++ {
			if _, err := cache.Get(context.Background()); err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
		}
		if calls != 1 {
			t.Errorf("expected 1 fetch, got %d", calls)
		}

		fake.Advance(9*time.Minute + time.Second)
		if _, err := cache.Get(context.Background()); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if calls != 2 {
			t.Errorf("expected refresh inside margin, got %d fetches", calls)
		}
	})

	t.Run("invalidate forces refetch", func(t *testing.T) {
		fake := clock.NewFake(start)
		calls := 0
		cache := New(func(context.Context) (Token, error) {
			calls++
			return Token{Value: "tok", ExpiresAt: fake.Now().Add(time.Hour)}, nil
		}, WithClock(fake))

		_, _ = cache.Get(context.Background())
		cache.Invalidate()
		_, _ = cache.Get(context.Background())

		if calls != 2 {
			t.Errorf("expected 2 fetches, got %d", calls)
		}
	})

	t.Run("propagates fetch errors", func(t *testing.T) {
		boom := errors.New("boom")
		cache := New(func(context.Context) (Token, error) {
			return Token{}, boom
		})

		_, err := cache.Get(context.Background())
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped boom, got %v", err)
		}
	})

	t.Run("rejects empty token", func(t *testing.T) {
		cache := New(func(context.Context) (Token, error) {
			return Token{ExpiresAt: start.Add(time.Hour)}, nil
		})

		_, err := cache.Get(context.Background())
		if !errors.Is(err, ErrEmptyToken) {
			t.Errorf("expected ErrEmptyToken, got %v", err)
		}
	})
}
