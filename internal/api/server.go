// Package api exposes the matching engine over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cachewarming/receipt-match-backend/internal/api/handlers"
	"github.com/cachewarming/receipt-match-backend/internal/api/middleware"
	"github.com/cachewarming/receipt-match-backend/internal/application/matching"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	matching   *matching.Service
}

// NewServer creates a new API server.
func NewServer(cfg Config, matchingService *matching.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		logger:   logger,
		matching: matchingService,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}
	s.router.Use(middleware.CORS(corsConfig))
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	matchesHandler := handlers.NewMatchesHandler(s.matching)
	statsHandler := handlers.NewStatsHandler(s.matching)
	aliasesHandler := handlers.NewAliasesHandler(s.matching)

	s.router.Route("/api", func(r chi.Router) {
		// Matching workflow
		r.Post("/match/auto", matchesHandler.AutoMatch)
		r.Post("/match/manual", matchesHandler.CreateManual)
		r.Get("/match/{id}", matchesHandler.Get)
		r.Post("/match/{id}/confirm", matchesHandler.Confirm)
		r.Post("/match/{id}/reject", matchesHandler.Reject)
		r.Post("/match/{id}/unmatch", matchesHandler.Unmatch)

		// Candidate review
		r.Get("/receipts/{id}/candidates", matchesHandler.GetCandidates)

		// Stats and learned aliases
		r.Get("/stats", statsHandler.Get)
		r.Get("/aliases", aliasesHandler.List)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
