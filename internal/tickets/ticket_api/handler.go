package ticket_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/tickets"
	"ms-boxoffice/internal/utils"
)

type Handler struct {
	Tickets *tickets.Service
	Logger  *logger.Logger
}

func NewHandler(svc *tickets.Service, log *logger.Logger) *Handler {
	return &Handler{
		Tickets: svc,
		Logger:  log,
	}
}

// GetTicket handles GET /api/tickets/{ticketId}.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	userID := auth.UserID(r.Context())

	ticket, err := h.Tickets.GetTicket(r.Context(), ticketID, userID)
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket", ticket))
}

// ListTickets handles GET /api/tickets.
func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	list, err := h.Tickets.ListByUser(r.Context(), userID)
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("tickets", list))
}

// Scan handles POST /api/admin/tickets/scan — gate staff only.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	ticket, err := h.Tickets.Scan(r.Context(), req.Barcode)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Scan: barcode=%s: %v", req.Barcode, err))
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket admitted", ticket))
}

// Void handles POST /api/admin/tickets/{ticketId}/void.
func (h *Handler) Void(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	ticket, err := h.Tickets.Void(r.Context(), ticketID)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Void: ticket=%s: %v", ticketID, err))
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket voided", ticket))
}
