package http

import (
	"io"
	"net/http"

	"github.com/dejobratic/nooks/internal/orders/app/commands"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type initiatePaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	OrderID         string          `json:"orderId"`
	SuccessURL      string          `json:"successUrl"`
	CancelURL       string          `json:"cancelUrl"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	BranchID        string          `json:"branchId"`
	DeliveryAddress *domain.Address `json:"deliveryAddress"`
}

type initiatePaymentResponse struct {
	ID         string          `json:"id"`
	URL        string          `json:"url,omitempty"`
	Status     payment.Status  `json:"status"`
	Provider   string          `json:"provider"`
	Commission decimal.Decimal `json:"commission"`
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cmd := commands.InitiatePaymentCommand{
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		DeliveryFee: req.DeliveryFee,
	}
	// Delivery checkouts are checked for eligibility before the provider is called.
	if req.BranchID != "" && req.DeliveryAddress != nil {
		cmd.Eligibility = &commands.CheckEligibilityCommand{
			BranchID: req.BranchID,
			Address:  *req.DeliveryAddress,
		}
	}

	result, err := h.service.InitiatePayment(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, initiatePaymentResponse{
		ID:         result.Session.ID,
		URL:        result.Session.URL,
		Status:     result.Session.Status,
		Provider:   result.Session.Provider,
		Commission: result.Commission,
	})
}

// paymentWebhook always acknowledges. Providers retry on non-2xx answers and
// every outcome here is either applied or an idempotent no-op.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.WarnContext(r.Context(), "payment webhook body unreadable", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	event, err := h.service.HandlePaymentWebhook(r.Context(), commands.PaymentWebhookCommand{
		Header: r.Header,
		Body:   body,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "payment webhook not applied",
			"payment_id", event.PaymentID,
			"error", err,
		)
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

// paymentRedirect sends the browser returning from a hosted payment page back
// into the app.
func (h *Handler) paymentRedirect(w http.ResponseWriter, r *http.Request) {
	target, err := payment.RedirectTarget(r.URL.Query().Get("to"), h.opts.DeepLinkSchemes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.PaymentStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
