package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dejobratic/nooks/internal/orders/app/commands"
	"github.com/dejobratic/nooks/internal/orders/app/queries"
	"github.com/dejobratic/nooks/internal/orders/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type placeOrderRequest struct {
	OrderID         string          `json:"orderId"`
	PaymentID       string          `json:"paymentId"`
	Customer        domain.Customer `json:"customer"`
	BranchID        string          `json:"branchId"`
	OrderType       string          `json:"orderType"`
	Items           []domain.Item   `json:"items"`
	DeliveryFee     decimal.Decimal `json:"deliveryFee"`
	PromoCode       string          `json:"promoCode"`
	DeliveryAddress *domain.Address `json:"deliveryAddress"`
}

type eligibilityRequest struct {
	BranchID        string         `json:"branchId"`
	DeliveryAddress domain.Address `json:"deliveryAddress"`
}

type merchantCancelRequest struct {
	Reason string `json:"reason"`
	Refund *bool  `json:"refund"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type calculateCommissionRequest struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"deliveryFee"`
}

type statusResponse struct {
	OrderID             string              `json:"orderId"`
	Status              domain.OrderStatus  `json:"status"`
	OrderType           domain.OrderType    `json:"orderType"`
	CanHold             bool                `json:"canHold"`
	CanCustomerCancel   bool                `json:"canCustomerCancel"`
	CancelTimeRemaining int64               `json:"cancelTimeRemaining"`
	RefundStatus        domain.RefundStatus `json:"refundStatus"`
	OtoID               string              `json:"otoId,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

type commissionResponse struct {
	OrderID          string                  `json:"orderId,omitempty"`
	CommissionAmount decimal.Decimal         `json:"commissionAmount"`
	CommissionRate   decimal.Decimal         `json:"commissionRate"`
	CommissionStatus domain.CommissionStatus `json:"commissionStatus,omitempty"`
	Stored           bool                    `json:"stored"`
}

func newCommissionResponse(view *queries.CommissionView) commissionResponse {
	return commissionResponse{
		OrderID:          view.OrderID,
		CommissionAmount: view.Amount,
		CommissionRate:   view.Rate,
		CommissionStatus: view.Status,
		Stored:           view.Stored,
	}
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.PlaceOrder(r.Context(), commands.PlaceOrderCommand{
		OrderID:         req.OrderID,
		PaymentID:       req.PaymentID,
		Customer:        req.Customer,
		BranchID:        req.BranchID,
		OrderType:       domain.OrderType(req.OrderType),
		Items:           req.Items,
		DeliveryFee:     req.DeliveryFee,
		PromoCode:       req.PromoCode,
		DeliveryAddress: req.DeliveryAddress,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"order": result.Order, "duplicate": result.Duplicate})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := queries.ListOrdersQuery{
		Status:     params.Get("status"),
		CustomerID: params.Get("customerId"),
		BranchID:   params.Get("branchId"),
	}
	if page, err := strconv.Atoi(params.Get("page")); err == nil {
		query.Page = page
	}
	if pageSize, err := strconv.Atoi(params.Get("pageSize")); err == nil {
		query.PageSize = pageSize
	}

	orders, err := h.service.ListOrders(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	var (
		order *domain.Order
		err   error
	)
	// ?ref=dispatch resolves {id} as the delivery provider's shipment id.
	if r.URL.Query().Get("ref") == "dispatch" {
		order, err = h.service.GetOrderByDispatchID(r.Context(), chi.URLParam(r, "id"))
	} else {
		order, err = h.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) checkEligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.CheckEligibility(r.Context(), commands.CheckEligibilityCommand{
		BranchID: req.BranchID,
		Address:  req.DeliveryAddress,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eligible": true})
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		OrderID:             view.OrderID,
		Status:              view.Status,
		OrderType:           view.OrderType,
		CanHold:             view.CanHold,
		CanCustomerCancel:   view.CanCustomerCancel,
		CancelTimeRemaining: view.CancelTimeRemaining.Milliseconds(),
		RefundStatus:        view.RefundStatus,
		OtoID:               view.OtoID,
		CreatedAt:           view.CreatedAt,
		UpdatedAt:           view.UpdatedAt,
	})
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": order})
}

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Hold(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": order.Status})
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": order.Status})
}

func (h *Handler) customerCancel(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.CustomerCancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"refundStatus": result.RefundStatus,
	})
}

func (h *Handler) merchantCancel(w http.ResponseWriter, r *http.Request) {
	var req merchantCancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.MerchantCancel(r.Context(), commands.MerchantCancelCommand{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
		Refund:  req.Refund,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"refundStatus": result.RefundStatus,
		"refundId":     result.RefundID,
	})
}

func (h *Handler) getCommission(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCommission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommissionResponse(view))
}

func (h *Handler) recordCommission(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.RecordCommission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommissionResponse(view))
}

func (h *Handler) calculateCommission(w http.ResponseWriter, r *http.Request) {
	var req calculateCommissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.CalculateCommission(r.Context(), queries.CalculateCommissionQuery{
		Subtotal:    req.Subtotal,
		DeliveryFee: req.DeliveryFee,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subtotal":         req.Subtotal,
		"commissionAmount": view.Amount,
		"commissionRate":   view.Rate,
	})
}
