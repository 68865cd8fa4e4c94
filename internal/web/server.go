// Package web exposes the contact import service as a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/clientdedup/internal/config"
	"github.com/JonMunkholm/clientdedup/internal/core"
	"github.com/JonMunkholm/clientdedup/internal/web/middleware"
)

// Options are the HTTP-facing settings the handlers need.
type Options struct {
	// MaxFileSize caps the multipart body of an import request.
	MaxFileSize int64
	// RequestTimeout applies to every route except import, which is bounded
	// by the service's own import timeout instead.
	RequestTimeout time.Duration
}

// Server is the HTTP server for the contact import API.
type Server struct {
	service *core.Service
	opts    Options
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, opts Options) *Server {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 100 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		service: service,
		opts:    opts,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Import runs under the service's import timeout, not the request timeout.
		r.Post("/clients/import", s.handleImport)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.opts.RequestTimeout))

			r.Get("/clients/export", s.handleExport)
			r.Get("/clients/stats", s.handleStats)
			r.Get("/clients/batch-config", s.handleBatchConfig)
			r.Get("/clients/duplicate-groups", s.handleDuplicateGroups)
			r.Get("/clients/duplicate-groups/{groupID}", s.handleGroupMembers)

			r.Get("/clients", s.handleListRecords)
			r.Post("/clients", s.handleCreateRecord)
			r.Delete("/clients", s.handleDeleteAll)
			r.Get("/clients/{id}", s.handleGetRecord)
			r.Put("/clients/{id}", s.handleUpdateRecord)
			r.Delete("/clients/{id}", s.handleDeleteRecord)

			r.Get("/imports/{batchID}/progress", s.handleImportProgress)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(cfg config.ServerConfig) error {
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
