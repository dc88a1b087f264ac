package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type redeemRequest struct {
	Points int64 `json:"points"`
}

type validatePromoRequest struct {
	Code     string          `json:"code"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (h *Handler) loyaltyBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Loyalty().Balance(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (h *Handler) loyaltyRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	remaining, err := h.service.Loyalty().Redeem(r.Context(), chi.URLParam(r, "customerId"), req.Points)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "points": remaining})
}

// validatePromo quotes a code without redeeming it. Redemption happens once
// the order is placed.
func (h *Handler) validatePromo(w http.ResponseWriter, r *http.Request) {
	var req validatePromoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.service.Promotions().Validate(r.Context(), req.Code, req.Subtotal)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "promo": quote})
}
