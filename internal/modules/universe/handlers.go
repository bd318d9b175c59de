package universe

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// Handlers handles universe HTTP requests: the instrument catalog, model
// portfolios, and client risk profiles.
type Handlers struct {
	instruments *InstrumentRepository
	profiles    *RiskProfileRepository
	models      *ModelPortfolioRepository
	priceSync   *PriceSyncService
	log         zerolog.Logger
}

// NewHandlers creates universe handlers
func NewHandlers(
	instruments *InstrumentRepository,
	profiles *RiskProfileRepository,
	models *ModelPortfolioRepository,
	priceSync *PriceSyncService,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		instruments: instruments,
		profiles:    profiles,
		models:      models,
		priceSync:   priceSync,
		log:         log.With().Str("handler", "universe").Logger(),
	}
}

// RegisterRoutes registers all universe routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/instruments", func(r chi.Router) {
		r.Get("/", h.HandleListInstruments)
		r.Post("/", h.HandleCreateInstrument)
		r.Get("/{id}", h.HandleGetInstrument)
		r.Delete("/{id}", h.HandleDeleteInstrument)
	})

	r.Get("/models", h.HandleListModels)

	r.Route("/clients/{clientID}/risk-profile", func(r chi.Router) {
		r.Get("/", h.HandleGetRiskProfile)
		r.Put("/", h.HandleUpsertRiskProfile)
	})

	r.Post("/sync/prices", h.HandleSyncPrices)
}

// HandleListInstruments returns the full instrument catalog
func (h *Handlers) HandleListInstruments(w http.ResponseWriter, r *http.Request) {
	instruments, err := h.instruments.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"instruments": instruments,
		"count":       len(instruments),
	})
}

// HandleGetInstrument returns one instrument by ID
func (h *Handlers) HandleGetInstrument(w http.ResponseWriter, r *http.Request) {
	inst, err := h.instruments.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if inst == nil {
		h.writeError(w, http.StatusNotFound, "instrument not found")
		return
	}

	h.writeJSON(w, http.StatusOK, inst)
}

type createInstrumentRequest struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	AssetClass   string  `json:"asset_class"`
	CurrentPrice float64 `json:"current_price"`
	RiskRating   int     `json:"risk_rating"`
}

// HandleCreateInstrument adds an instrument to the catalog
func (h *Handlers) HandleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var req createInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inst := domain.Instrument{
		ID:           uuid.New().String(),
		Symbol:       req.Symbol,
		Name:         req.Name,
		AssetClass:   domain.AssetClass(req.AssetClass),
		CurrentPrice: req.CurrentPrice,
		RiskRating:   req.RiskRating,
	}

	if err := h.instruments.Create(inst); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.instruments.GetByID(inst.ID)
	if err != nil || created == nil {
		h.writeError(w, http.StatusInternalServerError, "instrument created but could not be read back")
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// HandleDeleteInstrument removes an instrument from the catalog
func (h *Handlers) HandleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	if err := h.instruments.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleListModels returns the model portfolio catalog
func (h *Handlers) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.models.GetAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": models,
	})
}

// HandleGetRiskProfile returns a client's risk profile
func (h *Handlers) HandleGetRiskProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.GetByClient(chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if profile == nil {
		h.writeError(w, http.StatusNotFound, "no risk profile on file")
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

type upsertRiskProfileRequest struct {
	Score    int    `json:"score"`
	Category string `json:"category"`
}

// HandleUpsertRiskProfile creates or replaces a client's risk profile
func (h *Handlers) HandleUpsertRiskProfile(w http.ResponseWriter, r *http.Request) {
	var req upsertRiskProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile := domain.RiskProfile{
		ClientID: chi.URLParam(r, "clientID"),
		Score:    req.Score,
		Category: req.Category,
	}

	if err := h.profiles.Upsert(profile); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// HandleSyncPrices triggers an immediate price refresh
func (h *Handlers) HandleSyncPrices(w http.ResponseWriter, r *http.Request) {
	if err := h.priceSync.SyncAll(); err != nil {
		h.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
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
