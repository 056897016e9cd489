// Package api serves the simulation, scenario and appetite-policy HTTP API.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/lossim/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer builds the router.
func NewServer(cfg domain.ServerConfig, deps Deps) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	router.Get("/presets", handler.ListPresets)
	router.Get("/presets/{name}", handler.GetPreset)

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/simulate", handler.Simulate)
		r.Post("/tornado", handler.Tornado)
		r.Post("/stress", handler.Stress)
		r.Post("/sweep", handler.Sweep)
		r.Post("/sweep/async", handler.SweepAsync)
		r.Get("/sweeps/{id}", handler.GetSweep)

		r.Get("/scenarios", handler.ListScenarios)
		r.Post("/scenarios", handler.CreateScenario)
		r.Get("/scenarios/{id}", handler.GetScenario)
		r.Delete("/scenarios/{id}", handler.DeleteScenario)
		r.Post("/scenarios/{id}/simulate", handler.SimulateScenario)

		r.Get("/policies", handler.ListPolicies)
		r.Post("/policies", handler.CreatePolicy)
		r.Get("/policies/{id}", handler.GetPolicy)
		r.Post("/policies/reload", handler.ReloadPolicies)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
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

// Router returns the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
