// Package server is the HTTP surface of the importer: the NDJSON progress
// stream, the async import endpoints, the export download and health.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/property-importer/internal/async"
	"github.com/joseph-ayodele/property-importer/internal/common"
	"github.com/joseph-ayodele/property-importer/internal/export"
	"github.com/joseph-ayodele/property-importer/internal/pipeline"
	"github.com/joseph-ayodele/property-importer/internal/repository"
)

// Importer runs one import and streams its events.
type Importer interface {
	Run(ctx context.Context, req pipeline.Request) <-chan pipeline.Event
}

// HealthFunc reports whether the database answers.
type HealthFunc func(ctx context.Context) error

type Deps struct {
	Importer Importer
	Queue    async.Queue
	Runs     repository.ImportRunRepository
	Export   *export.Service
	Health   HealthFunc
}

type Config struct {
	StreamTimeout time.Duration
	// MaxBodyBytes bounds request bodies, screenshots included.
	MaxBodyBytes int64
}

type Server struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

func New(deps Deps, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 5 * time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}
	return &Server{deps: deps, cfg: cfg, logger: logger}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.healthz)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(s.requestLogger)
		r.Use(middleware.Recoverer)

		r.Route("/api", func(r chi.Router) {
			r.Post("/import-stream", s.streamImport)
			r.Get("/import-stream", s.streamImportQuery)
			r.Post("/imports", s.enqueueImport)
			r.Get("/imports/{id}", s.getImport)
			r.Get("/properties/export", s.exportProperties)
		})
	})
	return r
}

// requestLogger logs one line per request once the handler returns.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http.request",
			"req_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"remote", r.RemoteAddr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	body := map[string]any{"status": "ok", "timestamp": time.Now().Unix()}
	if s.deps.Health != nil {
		if err := s.deps.Health(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "connected"
	}
	respondJSON(w, http.StatusOK, body)
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	reqID := middleware.GetReqID(r.Context())
	if status >= http.StatusInternalServerError {
		s.logger.Error("http.error", "req_id", reqID, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Warn("http.rejected", "req_id", reqID, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, errorBody{Error: common.MessageOf(err), Code: common.CodeOf(err), RequestID: reqID})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
