// Package api serves the HTTP interface: position queries, groundtracks,
// pass predictions and catalog administration.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"

	"github.com/k-boateng/satellite-pass-predictionv2/internal/auth"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/health"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/httputil"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/metrics"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/passes"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tle"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/tracking"
	"github.com/k-boateng/satellite-pass-predictionv2/internal/transform"
)

// Tracker answers position queries. *tracking.Service implements it.
type Tracker interface {
	Snapshot() (*tle.Catalog, error)
	IDs(limit int) ([]int, error)
	Record(id int) (tle.ElementRecord, error)
	StateAt(id int, t time.Time) (transform.GeodeticState, error)
	Summary(id int, t time.Time) (tracking.Summary, error)
	Groundtrack(id int, start, end time.Time, step time.Duration) ([]tracking.GroundPoint, error)
}

// PassFinder predicts passes. *passes.Engine implements it.
type PassFinder interface {
	PassesOver(ctx context.Context, ids []int, site transform.Site, start, end time.Time) (map[int][]passes.PassEvent, error)
}

// Refresher triggers catalog refreshes. *tle.Refresher implements it.
type Refresher interface {
	Refresh(ctx context.Context) (tle.RefreshResult, error)
	ForceRefresh(ctx context.Context) (tle.RefreshResult, error)
}

// Streamer serves SSE groundtracks. *stream.Handler implements it.
type Streamer interface {
	MaxPoints() int
	ServeGroundtrack(w http.ResponseWriter, r *http.Request, id int, start, end time.Time, step time.Duration)
}

// Config holds listener settings and request limits.
type Config struct {
	Addr        string
	CORSOrigins []string
	TrustProxy  bool
	Auth        auth.Config

	// Groundtrack step: the default, and the bounds a requested step is clamped into.
	GroundtrackStep    time.Duration
	GroundtrackMinStep time.Duration
	GroundtrackMaxStep time.Duration

	MaxPassWindow time.Duration
	MaxPassIDs    int
}

// Deps are the services behind the handlers.
type Deps struct {
	Tracker   Tracker
	Passes    PassFinder
	Refresher Refresher
	Streamer  Streamer
	Catalogs  health.CatalogSource
	Clock     clockwork.Clock
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	cfg        Config
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if cfg.GroundtrackStep <= 0 {
		cfg.GroundtrackStep = 30 * time.Second
	}
	if cfg.GroundtrackMinStep <= 0 {
		cfg.GroundtrackMinStep = time.Second
	}
	if cfg.GroundtrackMaxStep < cfg.GroundtrackMinStep {
		cfg.GroundtrackMaxStep = 300 * time.Second
	}
	if cfg.MaxPassWindow <= 0 {
		cfg.MaxPassWindow = 10 * 24 * time.Hour
	}
	if cfg.MaxPassIDs <= 0 {
		cfg.MaxPassIDs = 100
	}

	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Metrics outermost so rejected and panicking requests are still counted.
	r.Use(metrics.Middleware)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger, s.cfg.TrustProxy))
	r.Use(middleware.Recoverer)
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
			MaxAge:         300,
		}))
	}
	r.Use(auth.Middleware(s.cfg.Auth))

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz(s.deps.Catalogs))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/satellites", s.handleListSatellites)
		r.Route("/satellites/{id}", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Get("/summary", s.handleSummary)
			r.Get("/groundtrack", s.handleGroundtrack)
		})
		r.Get("/passes", s.handlePasses)
		r.Get("/stream/groundtrack/{id}", s.handleStreamGroundtrack)
		r.Get("/catalog", s.handleCatalog)
		r.Post("/catalog/refresh", s.handleRefresh)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed")
	})
	return r
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			status := sr.statusCode
			level := slog.LevelInfo
			switch {
			case probePath(r.URL.Path):
				level = slog.LevelDebug
			case status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"request_id", requestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(status),
				"bytes", sr.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
