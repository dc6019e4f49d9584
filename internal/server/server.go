// Package server implements the Tripwire HTTP API server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/internal/server/handlers"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// DefaultMaxBodyBytes caps request bodies when the config leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// Server is the Tripwire HTTP API server.
type Server struct {
	handlers *handlers.Handlers
	router   chi.Router
	addr     string
	logger   *slog.Logger
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithKeyGenerator lets strategy registration mint a signing key when the
// request carries none.
func WithKeyGenerator(g handlers.KeyGenerator) Option {
	return func(s *Server) { s.handlers.SetKeyGenerator(g) }
}

// WithStrategyChecker validates registrations against the chain registry.
func WithStrategyChecker(c handlers.StrategyChecker) Option {
	return func(s *Server) { s.handlers.SetStrategyChecker(c) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
		s.handlers.SetLogger(l)
	}
}

// New creates a new HTTP server.
func New(cfg types.ServerConfig, d handlers.Dispatcher, prov provider.Provider, opts ...Option) *Server {
	s := &Server{
		handlers: handlers.New(d, prov),
		addr:     cfg.Addr,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(MaxBodyMiddleware(maxBody))
	r.Use(APIKeyMiddleware(cfg.APIKey))
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router = r
	s.registerRoutes(r)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// A dispatch waits for burn, attestation and mint.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("tripwire server listening", "addr", s.addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
