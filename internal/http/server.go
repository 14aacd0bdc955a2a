// Package http exposes the ingestion pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"raveview/internal/catalog"
	"raveview/internal/flood"
	"raveview/internal/ingest"
	"raveview/pkg/setlink"
)

// Submitter runs submissions and metadata previews.
type Submitter interface {
	Submit(ctx context.Context, raw, creatorID string) (*ingest.Result, error)
	Preview(ctx context.Context, raw string) (*setlink.SetMetadata, error)
}

// CatalogReader serves catalog lookups.
type CatalogReader interface {
	FindByURL(ctx context.Context, url string) (string, bool, error)
	Get(ctx context.Context, id string) (*catalog.Entry, error)
	Ping(ctx context.Context) error
	Conflicts() int64
}

// ThumbnailFetcher looks up a SoundCloud page thumbnail.
type ThumbnailFetcher interface {
	FetchThumbnail(ctx context.Context, pageURL string) (string, error)
}

// Dependencies are the collaborators the HTTP layer calls into. Thumbnails and Flood may be nil.
type Dependencies struct {
	Submitter  Submitter
	Catalog    CatalogReader
	Thumbnails ThumbnailFetcher
	Flood      *flood.Floodgate
}

// Config configures the listener.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	UserHeader      string
}

// Server is the HTTP front of the ingestion service.
type Server struct {
	config   Config
	deps     Dependencies
	logger   *zap.Logger
	server   *http.Server
	registry *prometheus.Registry
	metrics  *Metrics
}

// NewServer builds the server and its routes. Nothing listens until Start.
func NewServer(config Config, deps Dependencies, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.UserHeader == "" {
		config.UserHeader = "X-User-ID"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	registry := prometheus.NewRegistry()
	var conflicts func() float64
	if deps.Catalog != nil {
		conflicts = func() float64 { return float64(deps.Catalog.Conflicts()) }
	}

	s := &Server{
		config:   config,
		deps:     deps,
		logger:   logger,
		registry: registry,
		metrics:  newMetrics(registry, conflicts),
	}
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.routes(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("POST /api/sets/metadata", s.instrument("metadata", s.handleMetadata))
	mux.Handle("POST /api/sets", s.instrument("submit", s.handleSubmit))
	mux.Handle("GET /api/sets", s.instrument("lookup", s.handleLookup))
	mux.Handle("GET /api/sets/{id}", s.instrument("get", s.handleGet))
	mux.Handle("GET /api/soundcloud/thumbnail", s.instrument("thumbnail", s.handleThumbnail))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /{$}", s.handleIndex)

	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		handler(rec, r)

		elapsed := time.Since(started)
		s.metrics.recordRequest(route, rec.status, elapsed)
		s.logger.Debug("Handled request",
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed))
	})
}
