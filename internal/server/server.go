// Package server serves the aggregator over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/searxng/searxng-sub003/internal/results"
	"github.com/searxng/searxng-sub003/internal/search"
)

// Default timeouts for the listener.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
)

// Searcher runs queries against the engine registry.
// *search.Aggregator satisfies it.
type Searcher interface {
	Search(ctx context.Context, q *search.Query) (*results.Container, error)
	Registry() *search.Registry
}

// Config configures the HTTP server.
type Config struct {
	// Addr is the listen address, e.g. 127.0.0.1:8888.
	Addr string

	// Defaults fill in what a request does not set.
	Defaults search.ParseDefaults

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server is the HTTP API.
type Server struct {
	searcher Searcher
	cfg      Config
	handler  http.Handler
	started  time.Time
	logger   *slog.Logger
}

// New creates a server. It does not listen until ListenAndServe.
func New(searcher Searcher, cfg Config) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		searcher: searcher,
		cfg:      cfg,
		started:  time.Now(),
		logger:   slog.Default(),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /search", s.wrap("search", s.handleSearch))
	mux.Handle("GET /engines", s.wrap("engines", s.handleEngines))
	mux.Handle("GET /healthz", s.wrap("healthz", s.handleHealth))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	s.handler = mux

	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP server shutdown incomplete", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap adds request logging and error rendering to fn.
func (s *Server) wrap(operation string, fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()
		logger := s.logger.With(
			slog.String("req_id", reqID),
			slog.String("operation", operation),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))

		w.Header().Set("X-Request-ID", reqID)
		if err := fn(w, r); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Debug("http_request_canceled", slog.Duration("elapsed", time.Since(start)))
				return
			}
			logger.Debug("http_request_error",
				slog.Duration("elapsed", time.Since(start)),
				slog.String("error", err.Error()))
			writeError(w, err)
			return
		}
		logger.Debug("http_request_complete", slog.Duration("elapsed", time.Since(start)))
	})
}
