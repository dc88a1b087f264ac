package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
)

func sampleRequest() OrderRequest {
	return OrderRequest{
		OrderID:  "order-1",
		BranchID: "pos-branch-1",
		Delivery: true,
		Items:    []Item{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(18)}},
		Address:  &Address{Description: "King Fahd Rd", City: "Riyadh"},
		Discount: decimal.NewFromInt(5),
	}
}

func TestCreateOrder(t *testing.T) {
	t.Run("unconfigured client is non-fatal", func(t *testing.T) {
		client := NewClient(Config{}, nil, nil)

		_, err := client.CreateOrder(context.Background(), sampleRequest())
		if !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("expected ErrNotConfigured, got %v", err)
		}
		if !IsNonFatal(err) {
			t.Error("expected not-configured to be non-fatal")
		}
	})

	t.Run("creates order with idempotency key", func(t *testing.T) {
		var captured map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Idempotency-Key") != "order-1" {
				t.Errorf("expected idempotency key order-1, got %q", r.Header.Get("Idempotency-Key"))
			}
			if r.Header.Get("Authorization") != "Bearer static" {
				t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
			}
			_ = json.NewDecoder(r.Body).Decode(&captured)
			_, _ = w.Write([]byte(`{"data":{"id":"pos-123","reference":"order-1"}}`))
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, AccessToken: "static"}, nil, nil)
		result, err := client.CreateOrder(context.Background(), sampleRequest())
		if err != nil {
			t.Fatalf("CreateOrder() failed: %v", err)
		}
		if result.ID != "pos-123" {
			t.Errorf("expected pos-123, got %s", result.ID)
		}
		if captured["type"] != float64(orderTypeDelivery) {
			t.Errorf("expected delivery type, got %v", captured["type"])
		}
		if captured["reference"] != "order-1" {
			t.Errorf("expected reference order-1, got %v", captured["reference"])
		}
	})

	t.Run("fetches client-credentials token once", func(t *testing.T) {
		var tokenCalls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/oauth/token":
				atomic.AddInt32(&tokenCalls, 1)
				_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
			case "/v5/orders":
				_, _ = w.Write([]byte(`{"data":{"id":"pos-1"}}`))
			}
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "secret"}, nil, nil)
		for i := 0; i < 3; i++ {
			req := sampleRequest()
			req.OrderID = fmt.Sprintf("order-%d", i)
			if _, err := client.CreateOrder(context.Background(), req); err != nil {
				t.Fatalf("CreateOrder() failed: %v", err)
			}
		}
		if got := atomic.LoadInt32(&tokenCalls); got != 1 {
			t.Errorf("expected 1 token fetch, got %d", got)
		}
	})

	t.Run("token failure is non-fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, ClientID: "id", ClientSecret: "bad"}, nil, nil)
		_, err := client.CreateOrder(context.Background(), sampleRequest())
		if !errors.Is(err, ErrToken) || !IsNonFatal(err) {
			t.Errorf("expected non-fatal token error, got %v", err)
		}
	})

	t.Run("unauthorized is non-fatal, rejection is fatal", func(t *testing.T) {
		var status atomic.Int32
		status.Store(http.StatusUnauthorized)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte(`{"message":"product out of stock"}`))
		}))
		defer srv.Close()

		client := NewClient(Config{BaseURL: srv.URL, AccessToken: "static"}, nil, nil)

		_, err := client.CreateOrder(context.Background(), sampleRequest())
		if !IsNonFatal(err) {
			t.Errorf("expected 401 to be non-fatal, got %v", err)
		}

		status.Store(http.StatusUnprocessableEntity)
		_, err = client.CreateOrder(context.Background(), sampleRequest())
		if err == nil || IsNonFatal(err) {
			t.Errorf("expected 422 to be fatal, got %v", err)
		}
	})
}
