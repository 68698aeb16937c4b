package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/pipeline"
	"github.com/opensource-finance/parsepay/internal/rules"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. dispatchTenant is the bus tenant
// POST /messages publishes under; empty means the request tenant.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, processor *pipeline.Processor, version string, dispatchTenant string) *Server {
	handler := NewHandler(repo, cache, bus, engine, processor, version, dispatchTenant)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression
	router.Use(BodyLimitMiddleware(maxBodyBytes))

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Extraction
		r.Post("/extract", handler.Extract)
		r.Post("/messages", handler.SubmitMessage)

		// Retrieval
		r.Get("/extractions/{id}", handler.GetExtraction)
		r.Get("/messages/{id}", handler.GetMessage)

		// Gate rule management
		r.Get("/gate-rules", handler.ListGateRules)
		r.Post("/gate-rules", handler.CreateGateRule)
		r.Post("/gate-rules/reload", handler.ReloadGateRules)
		r.Get("/gate-rules/{id}", handler.GetGateRule)
		r.Delete("/gate-rules/{id}", handler.DeleteGateRule)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
