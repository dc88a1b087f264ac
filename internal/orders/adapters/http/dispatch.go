package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/dejobratic/nooks/internal/orders/app/commands"
	"github.com/dejobratic/nooks/internal/orders/app/queries"
	"github.com/dejobratic/nooks/internal/orders/ports"
)

const dispatchSecretHeader = "X-Webhook-Secret"

type requestDeliveryRequest struct {
	OrderID string `json:"orderId"`
}

type dispatchWebhookRequest struct {
	OrderID string `json:"orderId"`
	OtoID   string `json:"otoId"`
	Status  string `json:"status"`
}

func (h *Handler) deliveryOptions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := queries.DeliveryOptionsQuery{
		BranchID: params.Get("branchId"),
		City:     params.Get("city"),
	}
	lat, latErr := strconv.ParseFloat(params.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(params.Get("lng"), 64)
	if latErr == nil && lngErr == nil {
		query.Lat, query.Lng = &lat, &lng
	}

	options, err := h.service.DeliveryOptions(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": options})
}

func (h *Handler) requestDelivery(w http.ResponseWriter, r *http.Request) {
	var req requestDeliveryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.RequestDelivery(r.Context(), req.OrderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "otoId": order.OtoID})
}

func (h *Handler) dispatchStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.DispatchStatus(r.Context(), r.URL.Query().Get("orderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) dispatchWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := h.opts.DispatchWebhookSecret; secret != "" {
		given := r.Header.Get(dispatchSecretHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
	}

	var req dispatchWebhookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	result, err := h.service.SyncDispatch(r.Context(), commands.SyncDispatchCommand{
		OtoID:   req.OtoID,
		OrderID: req.OrderID,
		Status:  req.Status,
	})
	if errors.Is(err, ports.ErrNotFound) {
		h.logger.InfoContext(r.Context(), "dispatch webhook for unknown order",
			"order_id", req.OrderID,
			"oto_id", req.OtoID,
		)
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "changed": false})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"changed":  result.Changed,
		"status":   result.Order.Status,
	})
}
