package portfolio

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// Handlers handles portfolio HTTP requests
type Handlers struct {
	portfolios *PortfolioRepository
	holdings   *HoldingRepository
	log        zerolog.Logger
}

// NewHandlers creates portfolio handlers
func NewHandlers(portfolios *PortfolioRepository, holdings *HoldingRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		portfolios: portfolios,
		holdings:   holdings,
		log:        log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes registers all portfolio routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Post("/", h.HandleCreatePortfolio)
		r.Get("/{id}", h.HandleGetPortfolio)
		r.Get("/{id}/holdings", h.HandleGetHoldings)
	})

	r.Get("/clients/{clientID}/portfolios", h.HandleGetClientPortfolios)
}

type createPortfolioRequest struct {
	ClientID     string  `json:"client_id"`
	Cash         float64 `json:"cash"`
	BaseCurrency string  `json:"base_currency"`
}

// HandleCreatePortfolio opens a new portfolio with an initial cash balance
func (h *Handlers) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ClientID == "" {
		h.writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	if req.Cash < 0 {
		h.writeError(w, http.StatusBadRequest, "cash must not be negative")
		return
	}

	p := domain.Portfolio{
		ID:           uuid.New().String(),
		ClientID:     req.ClientID,
		Cash:         req.Cash,
		BaseCurrency: req.BaseCurrency,
	}

	if err := h.portfolios.Create(p); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	created, err := h.portfolios.GetByID(p.ID)
	if err != nil || created == nil {
		h.writeError(w, http.StatusInternalServerError, "portfolio created but could not be read back")
		return
	}

	h.writeJSON(w, http.StatusCreated, created)
}

// HandleGetPortfolio returns one portfolio by ID
func (h *Handlers) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.portfolios.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		h.writeError(w, http.StatusNotFound, "portfolio not found")
		return
	}

	h.writeJSON(w, http.StatusOK, p)
}

// HandleGetHoldings returns a portfolio's positions
func (h *Handlers) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	p, err := h.portfolios.GetByID(portfolioID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		h.writeError(w, http.StatusNotFound, "portfolio not found")
		return
	}

	holdings, err := h.holdings.GetByPortfolio(portfolioID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolio_id": portfolioID,
		"cash":         p.Cash,
		"holdings":     holdings,
	})
}

// HandleGetClientPortfolios returns every portfolio belonging to a client
func (h *Handlers) HandleGetClientPortfolios(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.portfolios.GetByClient(chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"portfolios": portfolios,
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
