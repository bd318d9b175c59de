package rebalancing

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/modules/allocation"
)

// SnapshotReader supplies stored allocation snapshots
type SnapshotReader interface {
	GetRecent(portfolioID string, limit int) ([]allocation.Snapshot, error)
}

// Handlers handles allocation and drift HTTP requests
type Handlers struct {
	service   *Service
	snapshots SnapshotReader
	log       zerolog.Logger
}

// NewHandlers creates rebalancing handlers
func NewHandlers(service *Service, snapshots SnapshotReader, log zerolog.Logger) *Handlers {
	return &Handlers{
		service:   service,
		snapshots: snapshots,
		log:       log.With().Str("handler", "rebalancing").Logger(),
	}
}

// RegisterRoutes registers all rebalancing routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios/{id}", func(r chi.Router) {
		r.Get("/allocation", h.HandleGetAllocation)
		r.Get("/drift", h.HandleGetDrift)
		r.Get("/snapshots", h.HandleGetSnapshots)
	})
}

// HandleGetAllocation returns the portfolio's current asset-class breakdown
func (h *Handlers) HandleGetAllocation(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetAllocation(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		h.writeError(w, http.StatusNotFound, "portfolio not found")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// HandleGetDrift returns the drift report against the matching model
func (h *Handlers) HandleGetDrift(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetDrift(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if report == nil {
		h.writeError(w, http.StatusNotFound, "portfolio not found")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

// HandleGetSnapshots returns stored allocation history, newest first
func (h *Handlers) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	snapshots, err := h.snapshots.GetRecent(chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
