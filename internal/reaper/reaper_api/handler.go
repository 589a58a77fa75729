package reaper_api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-boxoffice/internal/errs"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/payment/storage"
	"ms-boxoffice/internal/reaper"
	"ms-boxoffice/internal/utils"
)

// Handler is the operator surface: manual sweeps and the reconciliation
// backlog.
type Handler struct {
	Reaper *reaper.Service
	Recon  storage.Store
	Logger *logger.Logger
}

func NewHandler(sweeper *reaper.Service, recon storage.Store, log *logger.Logger) *Handler {
	return &Handler{
		Reaper: sweeper,
		Recon:  recon,
		Logger: log,
	}
}

// Sweep handles POST /api/admin/expired-holds — run one reclaim pass now
// instead of waiting for the background interval.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Reaper.Sweep(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Sweep: %v", err))
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("sweep complete", result))
}

// GetReconciliation handles GET /api/admin/reconciliation/{recordId}.
func (h *Handler) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordId")

	record, err := h.Recon.GetRecord(r.Context(), recordID)
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, "reconciliation record not found", nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reconciliation record", record))
}

// ResolveReconciliation handles POST /api/admin/reconciliation/{recordId}/resolve
// once the operator has refunded or re-issued by hand.
func (h *Handler) ResolveReconciliation(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordId")

	if err := h.Recon.Resolve(r.Context(), recordID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ResolveReconciliation: record=%s: %v", recordID, err))
		utils.WriteError(w, http.StatusNotFound, "reconciliation record not found", nil)
		return
	}
	h.Logger.Info("RECONCILIATION", fmt.Sprintf("record %s resolved", recordID))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reconciliation record resolved", nil))
}

// ListReconciliation handles GET /api/admin/reconciliation. A
// payment_intent query param looks up the record for one authorization
// instead of paging the open backlog.
func (h *Handler) ListReconciliation(w http.ResponseWriter, r *http.Request) {
	if intentID := r.URL.Query().Get("payment_intent"); intentID != "" {
		record, err := h.Recon.GetByPaymentIntent(r.Context(), intentID)
		if err != nil {
			utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
			return
		}
		if record == nil {
			utils.WriteError(w, http.StatusNotFound, "no reconciliation record for this payment", nil)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("reconciliation record", record))
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	records, err := h.Recon.ListOpen(r.Context(), limit, offset)
	if err != nil {
		utils.WriteError(w, errs.StatusCode(err), errs.PublicMessage(err), nil)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("open reconciliation records", records))
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
