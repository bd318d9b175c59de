package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/domain"
)

// Handlers handles order HTTP requests
type Handlers struct {
	engine *Engine
	orders *OrderRepository
	log    zerolog.Logger
}

// NewHandlers creates order handlers
func NewHandlers(engine *Engine, orders *OrderRepository, log zerolog.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		orders: orders,
		log:    log.With().Str("handler", "orders").Logger(),
	}
}

// RegisterRoutes registers all order routes
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.HandleSubmitOrder)
		r.Get("/", h.HandleListOrders)
		r.Get("/{id}", h.HandleGetOrder)
	})

	r.Get("/portfolios/{id}/orders", h.HandleGetOrderHistory)
}

// HandleSubmitOrder validates and accepts an order for execution.
// Returns 202 with the PENDING order on acceptance; rejections map to 4xx
// with the rejection code in the body.
func (h *Handlers) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.engine.Submit(req)
	if err != nil {
		var rej *domain.Rejection
		if errors.As(err, &rej) {
			h.writeJSON(w, rejectionStatus(rej.Code), map[string]string{
				"code":   string(rej.Code),
				"reason": rej.Reason,
			})
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusAccepted, order)
}

// HandleListOrders returns recent orders across all portfolios, most recent
// first. Accepts optional status and limit query parameters.
func (h *Handlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := r.URL.Query().Get("status")

	orders, err := h.orders.GetRecent(status, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// HandleGetOrder returns one order by ID
func (h *Handlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

// HandleGetOrderHistory returns a portfolio's orders, most recent first
func (h *Handlers) HandleGetOrderHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.orders.GetByPortfolio(chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// rejectionStatus maps a rejection code to an HTTP status: malformed input
// is 400, unknown references are 404, business-rule refusals are 422.
func rejectionStatus(code domain.RejectionCode) int {
	switch code {
	case domain.RejectInvalidOrder:
		return http.StatusBadRequest
	case domain.RejectPortfolioNotFound, domain.RejectInstrumentNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnprocessableEntity
	}
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
