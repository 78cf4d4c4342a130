// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/cloud"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is where the server listens when none is configured.
	DefaultAddr = "127.0.0.1:3000"

	// MaxRequestBodySize is the maximum size for request body to prevent DoS (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxTokensLimit is the maximum value for max_tokens parameter.
	MaxTokensLimit = 128000

	// DefaultVersion is reported by /health when no build version is set.
	DefaultVersion = "dev"
)

// ============================================================================
// COLLABORATORS
// ============================================================================

// Upstream is the completion API the handlers call.
type Upstream interface {
	Stream(ctx context.Context, r cloud.Request) (*stream.Reconciler, error)
	Complete(ctx context.Context, r cloud.Request) (string, error)
	ListModels(ctx context.Context) ([]model.ModelInfo, error)
	IsConfigured() bool
	DefaultModel() string
}

// Titler generates conversation titles.
type Titler interface {
	Generate(ctx context.Context, messages []model.ChatMessage) (string, error)
}

// Options configures the HTTP surface.
type Options struct {
	Addr           string
	Version        string
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// ============================================================================
// SERVER
// ============================================================================

// Server exposes the chat, title and model endpoints over HTTP.
type Server struct {
	opts     Options
	upstream Upstream
	titler   Titler
	logger   zerolog.Logger
	limiter  *RateLimiter
	router   *chi.Mux
	server   *http.Server
}

// New creates a Server. Call Close or Shutdown to stop the rate limiter's
// cleanup loop.
func New(upstream Upstream, titler Titler, opts Options, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}

	s := &Server{
		opts:     opts,
		upstream: upstream,
		titler:   titler,
		logger:   logger,
	}
	if opts.RateLimitRPS > 0 {
		s.limiter = NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, logger)
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// routes builds the router.
func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(SecurityHeaders)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(s.logger))
	r.Use(Recovery(s.logger))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/generate-title", s.handleTitle)
		r.Get("/models", s.handleModels)
	})
	return r
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	if !s.upstream.IsConfigured() {
		s.logger.Warn().Msg("AI_BUILDER_TOKEN is not set; chat requests will fail until a token is configured")
	}
	s.logger.Info().
		Str("addr", l.Addr().String()).
		Str("version", s.opts.Version).
		Msg("server starting")

	err := s.server.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("server shutting down")
	s.Close()
	return s.server.Shutdown(ctx)
}

// Close releases background resources without touching open connections.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
