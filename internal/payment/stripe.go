package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dejobratic/nooks/internal/clock"
	"github.com/dejobratic/nooks/internal/extapi"
)

const (
	defaultStripeBaseURL     = "https://api.stripe.com"
	stripeSignatureTolerance = 5 * time.Minute
)

type stripe struct {
	api           *extapi.Client
	secretKey     string
	webhookSecret string
	clock         clock.Clock
}

func newStripe(cfg Config, transport http.RoundTripper, clk clock.Clock) *stripe {
	baseURL := cfg.StripeBaseURL
	if baseURL == "" {
		baseURL = defaultStripeBaseURL
	}
	return &stripe{
		api:           extapi.NewClient("stripe", baseURL, cfg.Timeout, transport),
		secretKey:     cfg.StripeSecretKey,
		webhookSecret: cfg.StripeWebhookSecret,
		clock:         clk,
	}
}

func (s *stripe) name() string { return "stripe" }

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	PaymentIntent     string            `json:"payment_intent"`
	AmountTotal       int64             `json:"amount_total"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func (s *stripe) initiate(ctx context.Context, req InitiateRequest, amountMinor int64) (Session, error) {
	description := req.Description
	if description == "" {
		description = "Order " + req.OrderID
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = req.SuccessURL
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", req.OrderID)
	form.Set("metadata[order_id]", req.OrderID)
	form.Set("payment_intent_data[metadata][order_id]", req.OrderID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amountMinor, 10))
	form.Set("line_items[0][price_data][product_data][name]", description)

	var session stripeCheckoutSession
	err := s.api.Do(ctx, http.MethodPost, "/v1/checkout/sessions", nil, &session,
		extapi.WithBearer(s.secretKey),
		extapi.WithHeader("Idempotency-Key", "checkout-"+req.OrderID+"-"+strconv.FormatInt(amountMinor, 10)),
		extapi.WithForm(form),
	)
	if err != nil {
		return Session{}, err
	}

	return Session{ID: session.ID, URL: session.URL, Status: mapStripeSession(session)}, nil
}

func (s *stripe) status(ctx context.Context, paymentID string) (Session, error) {
	session, err := s.getSession(ctx, paymentID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:          session.ID,
		URL:         session.URL,
		Status:      mapStripeSession(session),
		AmountMinor: session.AmountTotal,
	}, nil
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *stripe) refund(ctx context.Context, paymentID string, amountMinor int64) (Refund, error) {
	session, err := s.getSession(ctx, paymentID)
	if err != nil {
		return Refund{}, err
	}
	if session.PaymentIntent == "" || session.PaymentStatus != "paid" {
		return Refund{}, ErrNoCapturedPayment
	}

	form := url.Values{}
	form.Set("payment_intent", session.PaymentIntent)
	if amountMinor > 0 && amountMinor < session.AmountTotal {
		form.Set("amount", strconv.FormatInt(amountMinor, 10))
	}

	var refund stripeRefund
	err = s.api.Do(ctx, http.MethodPost, "/v1/refunds", nil, &refund,
		extapi.WithBearer(s.secretKey),
		extapi.WithHeader("Idempotency-Key", "refund-"+session.PaymentIntent),
		extapi.WithForm(form),
	)
	if err != nil {
		return Refund{}, err
	}

	status := StatusRefunded
	if refund.Status == "failed" || refund.Status == "canceled" {
		status = StatusFailed
	}
	return Refund{ID: refund.ID, Status: status}, nil
}

func (s *stripe) getSession(ctx context.Context, id string) (stripeCheckoutSession, error) {
	var session stripeCheckoutSession
	err := s.api.Do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(id), nil, &session, extapi.WithBearer(s.secretKey))
	return session, err
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripeCharge struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

func (s *stripe) parseWebhook(header http.Header, body []byte) (WebhookEvent, error) {
	if err := s.verifySignature(header.Get("Stripe-Signature"), body); err != nil {
		return WebhookEvent{}, err
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: malformed stripe event: %v", ErrInvalidRequest, err)
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var session stripeCheckoutSession
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: malformed checkout session: %v", ErrInvalidRequest, err)
		}
		status := mapStripeSession(session)
		if event.Type == "checkout.session.async_payment_failed" || event.Type == "checkout.session.expired" {
			status = StatusFailed
		}
		orderID := session.Metadata["order_id"]
		if orderID == "" {
			orderID = session.ClientReferenceID
		}
		return WebhookEvent{PaymentID: session.ID, OrderID: orderID, Status: status}, nil

	case "charge.refunded":
		var charge stripeCharge
		if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: malformed charge: %v", ErrInvalidRequest, err)
		}
		return WebhookEvent{PaymentID: charge.PaymentIntent, OrderID: charge.Metadata["order_id"], Status: StatusRefunded}, nil

	default:
		// Unhandled event types are acknowledged without effect.
		return WebhookEvent{}, nil
	}
}

// verifySignature checks the Stripe-Signature header: HMAC-SHA256 over
// "{t}.{body}" with the endpoint secret, within the replay tolerance.
func (s *stripe) verifySignature(header string, body []byte) error {
	if s.webhookSecret == "" || header == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signatures = append(signatures, value)
		}
	}

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil || len(signatures) == 0 {
		return ErrInvalidSignature
	}
	age := s.clock.Now().Sub(time.Unix(seconds, 0))
	if age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, signature := range signatures {
		decoded, err := hex.DecodeString(signature)
		if err == nil && hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func mapStripeSession(session stripeCheckoutSession) Status {
	switch {
	case session.PaymentStatus == "paid" || session.PaymentStatus == "no_payment_required":
		return StatusPaid
	case session.Status == "expired":
		return StatusFailed
	default:
		return StatusInitiated
	}
}
