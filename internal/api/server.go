// Package api exposes the daemon's HTTP control and status surface.
//
// The API is the channel through which the surrounding client supplies
// updated app lists and inspects what the controller is currently tracking.
// It is intentionally thin: every mutating endpoint translates directly to
// one controller operation.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vpn-linux/split-tunnel/internal/config"
	"github.com/vpn-linux/split-tunnel/internal/log"
	"github.com/vpn-linux/split-tunnel/internal/splittunnel"
)

// Server represents the API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	controller *splittunnel.Controller
	apps       *config.AppsConfig
}

// NewServer creates a new API server driving the given controller. The
// configured app lists serve as the connect-time default when a request
// carries none.
func NewServer(controller *splittunnel.Controller, cfg *config.Config) *Server {
	s := &Server{
		controller: controller,
		apps:       cfg.Apps,
		router:     chi.NewRouter(),
	}

	s.router.Use(Recovery)
	s.router.Use(Logger)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.API.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/apps", s.handleUpdateApps)
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// Start starts the API server. Blocks until the server stops.
func (s *Server) Start() error {
	log.Infof("[API] Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the API server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	log.Infof("[API] Stopping server")
	return s.httpServer.Shutdown(ctx)
}
