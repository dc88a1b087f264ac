//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/database/databasetest"
	"github.com/dejobratic/nooks/internal/orders/adapters/postgres"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/shopspring/decimal"
)

func newOrder(id string, createdAt time.Time) domain.Order {
	lat, lng := 24.7136, 46.6753
	return domain.Order{
		ID:         id,
		Status:     domain.StatusPreparing,
		OrderType:  domain.OrderTypeDelivery,
		Customer:   domain.Customer{ID: "cust-1", Name: "Sara", Phone: "+966500000000"},
		BranchID:   "riyadh-olaya",
		BranchName: "Olaya",
		Items: []domain.Item{
			{ProductID: "latte", Name: "Latte", Quantity: 2, UnitPrice: decimal.RequireFromString("18.50")},
		},
		Total:           decimal.RequireFromString("52.00"),
		DeliveryFee:     decimal.RequireFromString("15.00"),
		Discount:        decimal.Zero,
		DeliveryAddress: &domain.Address{Address: "King Fahd Rd", City: "Riyadh", Lat: &lat, Lng: &lng},
		PaymentID:       "pay_" + id,
		RefundStatus:    domain.RefundNone,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
}

func TestRepositoryCreate(t *testing.T) {
	pool := databasetest.NewPool(t)
	repo := postgres.NewRepository(pool, nil)
	ctx := context.Background()

	order := newOrder("order-create", time.Now().UTC().Truncate(time.Microsecond))

	created, err := repo.Create(ctx, order)
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create the order")
	}

	retrieved, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to retrieve order: %v", err)
	}

	if retrieved.Status != domain.StatusPreparing {
		t.Errorf("expected status %s, got %s", domain.StatusPreparing, retrieved.Status)
	}
	if !retrieved.Total.Equal(order.Total) {
		t.Errorf("expected total %s, got %s", order.Total, retrieved.Total)
	}
	if len(retrieved.Items) != 1 || retrieved.Items[0].Quantity != 2 {
		t.Errorf("items did not round trip: %+v", retrieved.Items)
	}
	if !retrieved.HasDeliveryAddress() || *retrieved.DeliveryAddress.Lat != 24.7136 {
		t.Errorf("delivery address did not round trip: %+v", retrieved.DeliveryAddress)
	}
	if retrieved.CommissionAmount.Valid {
		t.Errorf("expected no commission, got %s", retrieved.CommissionAmount.Decimal)
	}
	if retrieved.CommissionStatus != domain.CommissionPending {
		t.Errorf("expected pending commission, got %s", retrieved.CommissionStatus)
	}

	created, err = repo.Create(ctx, order)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Error("expected duplicate insert to be ignored")
	}
}

func TestRepositoryConcurrentCreate(t *testing.T) {
	pool := databasetest.NewPool(t)
	repo := postgres.NewRepository(pool, nil)
	ctx := context.Background()

	order := newOrder("order-race", time.Now().UTC())

	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := repo.Create(ctx, order)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			if created {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one create, got %d", wins.Load())
	}
}

func TestRepositoryConditionalUpdates(t *testing.T) {
	pool := databasetest.NewPool(t)
	repo := postgres.NewRepository(pool, nil)
	ctx := context.Background()

	order := newOrder("order-cas", time.Now().UTC())
	if _, err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := repo.UpdateStatus(ctx, order.ID, domain.StatusPreparing, domain.StatusReady)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.StatusReady {
		t.Errorf("expected Ready, got %s", updated.Status)
	}

	if _, err := repo.UpdateStatus(ctx, order.ID, domain.StatusPreparing, domain.StatusOnHold); !errors.Is(err, ports.ErrConflict) {
		t.Errorf("expected ErrConflict for stale from, got %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, "missing", domain.StatusPreparing, domain.StatusReady); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	delivered, err := repo.UpdateStatus(ctx, order.ID, domain.StatusReady, domain.StatusDelivered)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.CommissionStatus != domain.CommissionSettled {
		t.Errorf("expected settled commission, got %s", delivered.CommissionStatus)
	}

	_, err = repo.Cancel(ctx, order.ID, ports.Cancellation{
		From:   domain.StatusReady,
		Reason: "late",
		By:     domain.CancelledByMerchant,
	})
	if !errors.Is(err, ports.ErrConflict) {
		t.Errorf("expected cancel of delivered order to conflict, got %v", err)
	}
}

func TestRepositoryCancelOnce(t *testing.T) {
	pool := databasetest.NewPool(t)
	repo := postgres.NewRepository(pool, nil)
	ctx := context.Background()

	order := newOrder("order-cancel", time.Now().UTC())
	if _, err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	cancellation := ports.Cancellation{
		From:         domain.StatusPreparing,
		Reason:       "out of stock",
		By:           domain.CancelledByMerchant,
		RefundStatus: domain.RefundNone,
	}

	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Cancel(ctx, order.ID, cancellation); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected one winning cancel, got %d", wins.Load())
	}

	cancelled, err := repo.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cancelled.CancellationReason != "out of stock" || cancelled.CancelledBy != domain.CancelledByMerchant {
		t.Errorf("unexpected cancellation fields: %+v", cancelled)
	}

	if err := repo.UpdateRefund(ctx, order.ID, domain.RefundRefunded, "rf_1"); err != nil {
		t.Fatalf("update refund: %v", err)
	}
	if err := repo.UpdateRefund(ctx, order.ID, domain.RefundRefunded, ""); err != nil {
		t.Fatalf("update refund without id: %v", err)
	}
	refunded, _ := repo.GetByID(ctx, order.ID)
	if refunded.RefundID != "rf_1" || refunded.RefundStatus != domain.RefundRefunded {
		t.Errorf("expected refund rf_1 kept, got %s %s", refunded.RefundStatus, refunded.RefundID)
	}
}

func TestRepositoryRecordCommissionKeepsFirst(t *testing.T) {
	pool := databasetest.NewPool(t)
	repo := postgres.NewRepository(pool, nil)
	ctx := context.Background()

	order := newOrder("order-commission", time.Now().UTC())
	if _, err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}

	recorded, err := repo.RecordCommission(ctx, order.ID, decimal.RequireFromString("0.37"), decimal.RequireFromString("0.01"))
	if err != nil || !recorded {
		t.Fatalf("expected first commission recorded, got %v %v", recorded, err)
	}
	recorded, err = repo.RecordCommission(ctx, order.ID, decimal.RequireFromString("9.99"), decimal.RequireFromString("0.05"))
	if err != nil || recorded {
		t.Fatalf("expected second commission ignored, got %v %v", recorded, err)
	}
	if _, err := repo.RecordCommission(ctx, "missing", decimal.Zero, decimal.Zero); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stored, _ := repo.GetByID(ctx, order.ID)
	if !stored.CommissionAmount.Decimal.Equal(decimal.RequireFromString("0.37")) {
		t.Errorf("expected commission 0.37, got %s", stored.CommissionAmount.Decimal)
	}
}

func TestRepositoryListAndDispatchLookup(t *testing.T) {
	pool := databasetest.NewPool(t)
	repo := postgres.NewRepository(pool, nil)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"order-a", "order-b", "order-c"} {
		order := newOrder(id, base.Add(time.Duration(i)*time.Minute))
		if id == "order-c" {
			order.Customer.ID = "cust-2"
		}
		if _, err := repo.Create(ctx, order); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	all, err := repo.List(ctx, ports.ListFilter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "order-c" {
		t.Fatalf("expected newest first, got %d orders", len(all))
	}

	mine, err := repo.List(ctx, ports.ListFilter{CustomerID: "cust-1"})
	if err != nil {
		t.Fatalf("list by customer: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 orders for cust-1, got %d", len(mine))
	}

	ready := domain.StatusReady
	none, err := repo.List(ctx, ports.ListFilter{Status: &ready})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no Ready orders, got %d", len(none))
	}

	if err := repo.SetDispatch(ctx, "order-b", "oto-42", false); err != nil {
		t.Fatalf("set dispatch: %v", err)
	}
	found, err := repo.GetByDispatchID(ctx, "oto-42")
	if err != nil {
		t.Fatalf("get by dispatch id: %v", err)
	}
	if found.ID != "order-b" {
		t.Errorf("expected order-b, got %s", found.ID)
	}
	if err := repo.SetPaymentID(ctx, "missing", "pay_x"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPaymentSessionsKeepCommission(t *testing.T) {
	pool := databasetest.NewPool(t)
	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	sessions := postgres.NewPaymentSessions(pool, clk)
	ctx := context.Background()

	first, err := sessions.Save(ctx, ports.PaymentSession{
		OrderID:          "order-1",
		PaymentID:        "pay_1",
		Provider:         "moyasar",
		Amount:           decimal.RequireFromString("115.00"),
		DeliveryFee:      decimal.RequireFromString("15.00"),
		CommissionAmount: decimal.RequireFromString("1.00"),
		CommissionRate:   decimal.RequireFromString("0.01"),
		Status:           payment.StatusInitiated,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !first.CommissionAmount.Equal(decimal.RequireFromString("1.00")) {
		t.Fatalf("expected commission 1.00, got %s", first.CommissionAmount)
	}

	second, err := sessions.Save(ctx, ports.PaymentSession{
		OrderID:          "order-1",
		PaymentID:        "pay_2",
		Provider:         "moyasar",
		Amount:           decimal.RequireFromString("215.00"),
		CommissionAmount: decimal.RequireFromString("2.00"),
		CommissionRate:   decimal.RequireFromString("0.01"),
		Status:           payment.StatusInitiated,
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if !second.CommissionAmount.Equal(decimal.RequireFromString("1.00")) {
		t.Errorf("expected stored commission 1.00 kept, got %s", second.CommissionAmount)
	}
	if second.PaymentID != "pay_2" {
		t.Errorf("expected payment id updated, got %s", second.PaymentID)
	}

	if err := sessions.UpdateStatus(ctx, "pay_2", payment.StatusPaid); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := sessions.GetByPaymentID(ctx, "pay_2")
	if err != nil {
		t.Fatalf("get by payment id: %v", err)
	}
	if got.Status != payment.StatusPaid {
		t.Errorf("expected paid, got %s", got.Status)
	}

	if _, err := sessions.GetByOrderID(ctx, "missing"); !errors.Is(err, ports.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := sessions.UpdateStatus(ctx, "pay_missing", payment.StatusPaid); !errors.Is(err, ports.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	third, err := sessions.Save(ctx, ports.PaymentSession{
		OrderID:          "order-1",
		PaymentID:        "pay_3",
		Provider:         "moyasar",
		Amount:           decimal.RequireFromString("115.00"),
		CommissionAmount: decimal.RequireFromString("1.00"),
		CommissionRate:   decimal.RequireFromString("0.01"),
		Status:           payment.StatusInitiated,
	})
	if err != nil {
		t.Fatalf("save over paid session: %v", err)
	}
	if third.PaymentID != "pay_2" || third.Status != payment.StatusPaid {
		t.Errorf("expected paid session pay_2 to be kept, got %s/%s", third.PaymentID, third.Status)
	}
}
