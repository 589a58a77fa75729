package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/order"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/utils"
)

type Handler struct {
	Payments  *payment.Service
	Finalizer *order.Finalizer
	Logger    *logger.Logger
}

func NewHandler(payments *payment.Service, finalizer *order.Finalizer, log *logger.Logger) *Handler {
	return &Handler{
		Payments:  payments,
		Finalizer: finalizer,
		Logger:    log,
	}
}

// CreatePaymentIntent handles POST /api/payment-intents.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.PaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.CartID == "" {
		utils.WriteError(w, http.StatusBadRequest, "cart_id is required", nil)
		return
	}

	resp, err := h.Payments.CreateAuthorization(r.Context(), req.CartID, userID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreatePaymentIntent: cart=%s user=%s: %v", req.CartID, userID, err))
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("payment intent ready", resp))
}

// CompletePurchase handles POST /api/purchase.
func (h *Handler) CompletePurchase(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.CompletePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	resp, err := h.Finalizer.CompletePurchase(r.Context(), userID, req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CompletePurchase: cart=%s user=%s: %v", req.CartID, userID, err))
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), errs.ConflictSeats(err))
		return
	}

	h.Logger.LogOrder("PURCHASED", resp.OrderID, fmt.Sprintf("user %s completed purchase", userID))
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("purchase complete", resp))
}

// GetOrder handles GET /api/orders/{orderId}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	userID := auth.UserID(r.Context())

	result, err := h.Finalizer.GetOrder(r.Context(), orderID, userID)
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("order", result))
}

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	results, err := h.Finalizer.ListOrders(r.Context(), userID)
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("orders", results))
}
