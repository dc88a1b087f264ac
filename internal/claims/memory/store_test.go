package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestStoreClaimOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(ctx, "order-1")
			if err != nil {
				t.Errorf("Claim() failed: %v", err)
			}
			if ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
}

func TestStoreRelease(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if ok, _ := store.Claim(ctx, "order-1"); !ok {
		t.Fatal("expected first claim to succeed")
	}
	if err := store.Release(ctx, "order-1"); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	if ok, _ := store.Claim(ctx, "order-1"); !ok {
		t.Fatal("expected claim after release to succeed")
	}
	if ok, _ := store.Claim(ctx, "order-2"); !ok {
		t.Fatal("expected independent order ids")
	}
}
