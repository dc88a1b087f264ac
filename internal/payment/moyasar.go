package payment

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dejobratic/nooks/internal/extapi"
)

const defaultMoyasarBaseURL = "https://api.moyasar.com"

type moyasar struct {
	api           *extapi.Client
	secretKey     string
	webhookSecret string
}

func newMoyasar(cfg Config, transport http.RoundTripper) *moyasar {
	baseURL := cfg.MoyasarBaseURL
	if baseURL == "" {
		baseURL = defaultMoyasarBaseURL
	}
	return &moyasar{
		api:           extapi.NewClient("moyasar", baseURL, cfg.Timeout, transport),
		secretKey:     cfg.MoyasarSecretKey,
		webhookSecret: cfg.MoyasarWebhookSecret,
	}
}

func (m *moyasar) name() string { return "moyasar" }

type moyasarInvoice struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata"`
	Payments []moyasarPayment  `json:"payments"`
}

type moyasarPayment struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Amount    int64             `json:"amount"`
	InvoiceID string            `json:"invoice_id"`
	Metadata  map[string]string `json:"metadata"`
}

func (m *moyasar) initiate(ctx context.Context, req InitiateRequest, amountMinor int64) (Session, error) {
	description := req.Description
	if description == "" {
		description = "Order " + req.OrderID
	}

	body := map[string]any{
		"amount":      amountMinor,
		"currency":    req.Currency,
		"description": description,
		"success_url": req.SuccessURL,
		"metadata":    map[string]string{"order_id": req.OrderID},
	}
	if req.CancelURL != "" {
		body["back_url"] = req.CancelURL
	}

	var invoice moyasarInvoice
	if err := m.api.Do(ctx, http.MethodPost, "/v1/invoices", body, &invoice, extapi.WithBasicAuth(m.secretKey, "")); err != nil {
		return Session{}, err
	}

	return Session{ID: invoice.ID, URL: invoice.URL, Status: mapMoyasarStatus(invoice.Status)}, nil
}

func (m *moyasar) status(ctx context.Context, paymentID string) (Session, error) {
	invoice, err := m.getInvoice(ctx, paymentID)
	if err != nil {
		return Session{}, err
	}
	return Session{
		ID:          invoice.ID,
		URL:         invoice.URL,
		Status:      mapMoyasarStatus(invoice.Status),
		AmountMinor: invoice.Amount,
	}, nil
}

func (m *moyasar) refund(ctx context.Context, paymentID string, amountMinor int64) (Refund, error) {
	invoice, err := m.getInvoice(ctx, paymentID)
	if err != nil {
		return Refund{}, err
	}

	var captured *moyasarPayment
	for i := range invoice.Payments {
		if invoice.Payments[i].Status == "paid" || invoice.Payments[i].Status == "captured" {
			captured = &invoice.Payments[i]
			break
		}
	}
	if captured == nil {
		return Refund{}, ErrNoCapturedPayment
	}

	if amountMinor <= 0 || amountMinor > captured.Amount {
		amountMinor = captured.Amount
	}

	var refunded moyasarPayment
	path := "/v1/payments/" + url.PathEscape(captured.ID) + "/refund"
	if err := m.api.Do(ctx, http.MethodPost, path, map[string]int64{"amount": amountMinor}, &refunded, extapi.WithBasicAuth(m.secretKey, "")); err != nil {
		return Refund{}, err
	}

	return Refund{ID: refunded.ID, Status: mapMoyasarStatus(refunded.Status)}, nil
}

func (m *moyasar) getInvoice(ctx context.Context, id string) (moyasarInvoice, error) {
	var invoice moyasarInvoice
	err := m.api.Do(ctx, http.MethodGet, "/v1/invoices/"+url.PathEscape(id), nil, &invoice, extapi.WithBasicAuth(m.secretKey, ""))
	return invoice, err
}

type moyasarWebhook struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	SecretToken string         `json:"secret_token"`
	Data        moyasarPayment `json:"data"`
}

func (m *moyasar) parseWebhook(_ http.Header, body []byte) (WebhookEvent, error) {
	var hook moyasarWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: malformed moyasar webhook: %v", ErrInvalidRequest, err)
	}

	if m.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(hook.SecretToken), []byte(m.webhookSecret)) != 1 {
		return WebhookEvent{}, ErrInvalidSignature
	}

	status := mapMoyasarStatus(hook.Data.Status)
	switch hook.Type {
	case "payment_paid":
		status = StatusPaid
	case "payment_failed":
		status = StatusFailed
	case "payment_refunded":
		status = StatusRefunded
	}

	paymentID := hook.Data.InvoiceID
	if paymentID == "" {
		paymentID = hook.Data.ID
	}

	return WebhookEvent{
		PaymentID: paymentID,
		OrderID:   hook.Data.Metadata["order_id"],
		Status:    status,
	}, nil
}

func mapMoyasarStatus(status string) Status {
	switch status {
	case "paid", "captured":
		return StatusPaid
	case "failed", "canceled", "expired", "voided":
		return StatusFailed
	case "refunded":
		return StatusRefunded
	default:
		return StatusInitiated
	}
}
