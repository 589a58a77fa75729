package catalog_api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/utils"
)

type Handler struct {
	Catalog *catalog.Service
	Logger  *logger.Logger
}

func NewHandler(svc *catalog.Service, log *logger.Logger) *Handler {
	return &Handler{
		Catalog: svc,
		Logger:  log,
	}
}

// GetEvent handles GET /api/events/{eventId}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	event, err := h.Catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("event", event))
}

// SeatMap handles GET /api/events/{eventId}/seats — every seat with its
// logical availability and price.
func (h *Handler) SeatMap(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	seats, err := h.Catalog.SeatMap(r.Context(), eventID, time.Now().UTC())
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("seat map", seats))
}

// InventorySummary handles GET /api/events/{eventId}/inventory.
func (h *Handler) InventorySummary(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	summary, err := h.Catalog.InventorySummary(r.Context(), eventID, time.Now().UTC())
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("inventory", summary))
}
