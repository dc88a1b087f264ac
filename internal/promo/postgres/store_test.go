//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dejobratic/nooks/internal/database/databasetest"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/dejobratic/nooks/internal/promo/postgres"
	"github.com/shopspring/decimal"
)

func TestStoreRedeemRespectsLimit(t *testing.T) {
	store := postgres.NewStore(databasetest.NewPool(t))
	ctx := context.Background()

	limit := 2
	err := store.Save(ctx, promo.Code{
		Code:       "summer",
		Type:       promo.TypeAmount,
		Value:      decimal.RequireFromString("7.50"),
		UsageLimit: &limit,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	stored, err := store.Get(ctx, "SUMMER")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !stored.Value.Equal(decimal.RequireFromString("7.5")) || stored.Type != promo.TypeAmount {
		t.Errorf("unexpected code %+v", stored)
	}

	for i := 0; i < limit; i++ {
		if err := store.Redeem(ctx, "SUMMER"); err != nil {
			t.Fatalf("redeem %d failed: %v", i, err)
		}
	}
	if err := store.Redeem(ctx, "SUMMER"); !errors.Is(err, promo.ErrUsageLimitReached) {
		t.Fatalf("expected ErrUsageLimitReached, got %v", err)
	}
	if err := store.Redeem(ctx, "MISSING"); !errors.Is(err, promo.ErrUnknownCode) {
		t.Fatalf("expected ErrUnknownCode, got %v", err)
	}
}
