// Package web provides the HTTP server and handlers for the meter reading
// upload API.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/enerflux/meterhub/internal/config"
	"github.com/enerflux/meterhub/internal/ingest"
	"github.com/enerflux/meterhub/internal/web/middleware"
)

// Store is everything the web layer needs from persistence: the upload
// pipeline's reading store plus account management and connectivity checks.
type Store interface {
	ingest.ReadingStore
	CreateAccount(ctx context.Context, accountID int64, name string) error
	ListAccounts(ctx context.Context) ([]ingest.Account, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the upload API.
type Server struct {
	store        Store
	orchestrator *ingest.Orchestrator
	limiter      *UploadLimiter
	cfg          *config.Config
	router       *chi.Mux
	server       *http.Server
}

// NewServer creates a Server wired to the given store.
func NewServer(store Store, cfg *config.Config) *Server {
	s := &Server{
		store:        store,
		orchestrator: ingest.NewOrchestrator(store, nil),
		limiter:      NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		cfg:          cfg,
		router:       chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/uploads/meter-readings", s.handleUpload)
		r.Get("/accounts", s.handleListAccounts)
		r.Post("/accounts", s.handleCreateAccount)
	})
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server
// stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server after draining active uploads.
func (s *Server) Shutdown(ctx context.Context) error {
	// Best effort: the HTTP shutdown below still bounds stragglers.
	_ = s.limiter.WaitForDrain(ctx)

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
