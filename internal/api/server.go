package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/orifeinberg7-coder/satellite-tracker/internal/auth"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/coverage"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/health"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/metrics"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/propagation"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/reportcache"
	"github.com/orifeinberg7-coder/satellite-tracker/internal/tle"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr          string
	TrustProxy    bool
	MaxAnalysesIP int // concurrent on-demand analyses per client IP
	MaxAnalyses   int // concurrent on-demand analyses total
	Auth          auth.Config
}

// Deps are the service components the handlers operate on.
type Deps struct {
	Store    *tle.Store
	Fetcher  *tle.Fetcher
	Cache    *tle.Cache
	Sampler  *propagation.Sampler
	Analyzer *coverage.Analyzer
	Reports  *reportcache.Cache
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	limiter := newAnalysisLimiter(cfg.MaxAnalysesIP, cfg.MaxAnalyses)
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool {
		return deps.Store.Get() != nil
	}))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/coverage", coverageHandler(logger, deps, limiter, cfg.TrustProxy))
	mux.HandleFunc("GET /api/v1/reports", reportsHandler(deps.Reports))
	mux.HandleFunc("GET /api/v1/heatmap", heatmapHandler(deps.Reports))
	mux.HandleFunc("GET /api/v1/tle/metadata", tleMetadataHandler(deps.Store, deps.Reports))
	mux.HandleFunc("POST /api/v1/tle/refresh", tleRefreshHandler(logger, deps))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
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
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
