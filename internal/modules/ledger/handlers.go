package ledger

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handlers handles transaction history and audit trail HTTP requests
type Handlers struct {
	transactions *TransactionRepository
	audit        *AuditRepository
	log          zerolog.Logger
}

// NewHandlers creates ledger handlers
func NewHandlers(transactions *TransactionRepository, audit *AuditRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		transactions: transactions,
		audit:        audit,
		log:          log.With().Str("handler", "ledger").Logger(),
	}
}

// RegisterRoutes registers all ledger routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{id}/transactions", h.HandleGetTransactions)

	r.Route("/audit", func(r chi.Router) {
		r.Get("/", h.HandleGetAuditTrail)
		r.Get("/clients/{clientID}", h.HandleGetClientAuditTrail)
	})
}

// HandleGetTransactions returns a portfolio's transactions, most recent first
func (h *Handlers) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	transactions, err := h.transactions.GetByPortfolio(chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// HandleGetAuditTrail returns recent audit events across all clients
func (h *Handlers) HandleGetAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.audit.GetRecent(limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// HandleGetClientAuditTrail returns recent audit events for one client
func (h *Handlers) HandleGetClientAuditTrail(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := h.audit.GetByClient(chi.URLParam(r, "clientID"), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
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
