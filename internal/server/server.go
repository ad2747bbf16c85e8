// Package server exposes the analyzer and the result store over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/observability"
	"github.com/ppiankov/clausewise/internal/store"
)

// Analyzer runs the analysis of an uploaded document
type Analyzer interface {
	AnalyzeReader(ctx context.Context, name string, r io.Reader, size int64, format string) (*model.AnalysisResult, error)
}

// Store persists results. It may be nil, in which case results are
// returned but not kept.
type Store interface {
	Save(ctx context.Context, result *model.AnalysisResult) error
	Get(ctx context.Context, id string) (*model.AnalysisResult, error)
	List(ctx context.Context, limit int) ([]store.Summary, error)
	Delete(ctx context.Context, id string) error
}

// Server is the HTTP API
type Server struct {
	analyzer  Analyzer
	store     Store
	cfg       model.ServerConfig
	logger    *zap.Logger
	collector *observability.Collector
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCollector sets the metrics collector served on /metrics
func WithCollector(c *observability.Collector) Option {
	return func(s *Server) {
		s.collector = c
	}
}

// WithStore enables persistence of results
func WithStore(st Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// New creates a server
func New(analyzer Analyzer, cfg model.ServerConfig, opts ...Option) *Server {
	s := &Server{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler configures all routes and middleware
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(s.logger, s.collector))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/healthz", s.healthCheck)
	if s.collector != nil {
		router.Method(http.MethodGet, "/metrics", s.collector.Handler())
	}

	router.Route("/v1/analyses", func(r chi.Router) {
		r.Post("/", s.createAnalysis)
		r.Get("/", s.listAnalyses)
		r.Get("/{id}", s.getAnalysis)
		r.Delete("/{id}", s.deleteAnalysis)
		r.Get("/{id}/entities.csv", s.getEntitiesCSV)
	})

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
