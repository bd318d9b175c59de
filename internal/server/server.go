// Package server provides the HTTP server and routing for Steward.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/steward-fi/steward/internal/database"
	ledgermod "github.com/steward-fi/steward/internal/modules/ledger"
	"github.com/steward-fi/steward/internal/modules/orders"
	portfoliomod "github.com/steward-fi/steward/internal/modules/portfolio"
	"github.com/steward-fi/steward/internal/modules/rebalancing"
	universemod "github.com/steward-fi/steward/internal/modules/universe"
)

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool

	Databases map[string]*database.DB

	UniverseHandlers    *universemod.Handlers
	PortfolioHandlers   *portfoliomod.Handlers
	OrderHandlers       *orders.Handlers
	RebalancingHandlers *rebalancing.Handlers
	LedgerHandlers      *ledgermod.Handlers
	EventStream         *EventStreamHandler
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes(cfg)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes wires the module handlers under /api
func (s *Server) setupRoutes(cfg Config) {
	systemHandlers := NewSystemHandlers(cfg.Databases, s.log)

	s.router.Get("/health", systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if cfg.EventStream != nil {
			r.Get("/events/ws", cfg.EventStream.ServeHTTP)
		}

		r.Get("/system/status", systemHandlers.HandleSystemStatus)

		cfg.UniverseHandlers.RegisterRoutes(r)
		cfg.PortfolioHandlers.RegisterRoutes(r)
		cfg.OrderHandlers.RegisterRoutes(r)
		cfg.RebalancingHandlers.RegisterRoutes(r)
		cfg.LedgerHandlers.RegisterRoutes(r)
	})
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, letting in-flight requests finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests
func (s *Server) Router() http.Handler {
	return s.router
}
