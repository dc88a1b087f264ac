package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dejobratic/nooks/internal/delivery"
	"github.com/dejobratic/nooks/internal/extapi"
	"github.com/dejobratic/nooks/internal/loyalty"
	"github.com/dejobratic/nooks/internal/orders/app"
	"github.com/dejobratic/nooks/internal/orders/app/commands"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/dejobratic/nooks/internal/orders/ports"
	"github.com/dejobratic/nooks/internal/payment"
	"github.com/dejobratic/nooks/internal/promo"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Options carries settings the handlers need beyond the service.
type Options struct {
	// DeepLinkSchemes are the app schemes GET /api/payment/redirect may send a browser to.
	DeepLinkSchemes []string
	// DispatchWebhookSecret is compared with the X-Webhook-Secret header on
	// courier callbacks. Empty disables the check.
	DispatchWebhookSecret string
	// Ready reports whether dependencies are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
	opts    Options
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, logger *slog.Logger, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger, opts: opts}
}

// Register binds every route under r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Get("/", h.listOrders)
			r.Post("/eligibility", h.checkEligibility)
			r.Post("/calculate-commission", h.calculateCommission)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getOrder)
				r.Get("/status", h.getStatus)
				r.Patch("/status", h.updateStatus)
				r.Post("/hold", h.hold)
				r.Post("/resume", h.resume)
				r.Post("/customer-cancel", h.customerCancel)
				r.Post("/merchant-cancel", h.merchantCancel)
				r.Get("/commission", h.getCommission)
				r.Post("/commission", h.recordCommission)
			})
		})

		r.Route("/payment", func(r chi.Router) {
			r.Post("/initiate", h.initiatePayment)
			r.Post("/webhook", h.paymentWebhook)
			r.Get("/redirect", h.paymentRedirect)
			r.Get("/{id}/status", h.paymentStatus)
		})

		r.Route("/oto", func(r chi.Router) {
			r.Get("/delivery-options", h.deliveryOptions)
			r.Post("/request-delivery", h.requestDelivery)
			r.Get("/order-status", h.dispatchStatus)
			r.Post("/webhook", h.dispatchWebhook)
		})

		r.Get("/loyalty/{customerId}", h.loyaltyBalance)
		r.Post("/loyalty/{customerId}/redeem", h.loyaltyRedeem)
		r.Post("/promo/validate", h.validatePromo)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// fail maps an application error onto a status code. Unknown errors are
// logged and reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrWindowExpired) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "windowExpired": true})
		return
	}

	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var apiErr *extapi.APIError
	switch {
	case errors.Is(err, ports.ErrNotFound),
		errors.Is(err, ports.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrConflict),
		errors.Is(err, commands.ErrCheckoutInProgress):
		return http.StatusConflict
	case errors.Is(err, commands.ErrPaymentRequired),
		errors.Is(err, commands.ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, commands.ErrPOSRejected),
		errors.Is(err, delivery.ErrNoOptions),
		errors.Is(err, commands.ErrNotDispatchable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrReasonRequired),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, delivery.ErrNotDeliverable),
		errors.Is(err, payment.ErrInvalidRequest),
		errors.Is(err, promo.ErrUnknownCode),
		errors.Is(err, promo.ErrInactive),
		errors.Is(err, promo.ErrNotYetValid),
		errors.Is(err, promo.ErrExpired),
		errors.Is(err, promo.ErrUsageLimitReached),
		errors.Is(err, promo.ErrInvalidSubtotal),
		errors.Is(err, loyalty.ErrInsufficientPoints),
		errors.Is(err, loyalty.ErrInvalidPoints),
		errors.Is(err, loyalty.ErrCustomerRequired):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrNotConfigured),
		errors.Is(err, delivery.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
