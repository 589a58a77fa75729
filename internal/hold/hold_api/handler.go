package hold_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/cart"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/hold"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/utils"
)

type Handler struct {
	Holds      *hold.Service
	Aggregator *cart.Aggregator
	Logger     *logger.Logger
}

func NewHandler(holds *hold.Service, aggregator *cart.Aggregator, log *logger.Logger) *Handler {
	return &Handler{
		Holds:      holds,
		Aggregator: aggregator,
		Logger:     log,
	}
}

// Reserve handles POST /api/events/{eventId}/reserve.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())

	var req models.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	resp, err := h.Holds.Reserve(r.Context(), eventID, userID, req)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Reserve: event=%s user=%s: %v", eventID, userID, err))
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), errs.ConflictSeats(err))
		return
	}

	h.Logger.LogHold("RESERVE", resp.CartID, fmt.Sprintf("%d seats held for event %s", len(resp.SeatIDs), eventID))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("seats reserved", resp))
}

// Release handles POST /api/events/{eventId}/release.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	userID := auth.UserID(r.Context())

	var req models.ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	released, err := h.Holds.Release(r.Context(), eventID, userID, req.SeatIDs)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Release: event=%s user=%s: %v", eventID, userID, err))
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("seats released", map[string]interface{}{
		"event_id": eventID,
		"released": released,
	}))
}

// GetCart handles GET /api/cart — the buyer's open carts with live totals.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	views, err := h.Aggregator.OpenForUser(r.Context(), userID, time.Now().UTC())
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("open carts", views))
}

// GetCartByID handles GET /api/cart/{cartId}.
func (h *Handler) GetCartByID(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")
	userID := auth.UserID(r.Context())

	view, err := h.Aggregator.ViewByID(r.Context(), cartID, userID)
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("cart", view))
}
