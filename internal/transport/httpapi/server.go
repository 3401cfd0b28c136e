// Package httpapi exposes the query engine over HTTP together with the
// health, readiness and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "itdocs-query/internal/common/errors"
	"itdocs-query/internal/common/logger"
	"itdocs-query/internal/common/validation"
	"itdocs-query/internal/models"
)

const maxBodyBytes = 1 << 20

// QueryProcessor is satisfied by the query engine.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, query, company string, qctx map[string]interface{}) *models.ResponseEnvelope
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	ReadyTimeout   time.Duration
}

type Server struct {
	config Config
	engine QueryProcessor
	checks map[string]Pinger
	logger logger.Logger
	router chi.Router
	srv    *http.Server
}

func NewServer(cfg Config, engine QueryProcessor, checks map[string]Pinger, log logger.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 25 * time.Second
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}

	s := &Server{
		config: cfg,
		engine: engine,
		checks: checks,
		logger: log.WithFields(map[string]interface{}{"component": "http-api"}),
	}
	s.router = s.routes()
	s.srv = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))
	r.Use(metricsMiddleware())

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.config.Address})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type queryRequest struct {
	Query   string                 `json:"query"`
	Company string                 `json:"company"`
	Context map[string]interface{} `json:"context"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var raw map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, "request body must be a JSON object", nil)
		return
	}

	result, err := validation.ValidateQueryRequest(raw)
	if err != nil {
		logger.FromContext(r.Context(), s.logger).Error("request validation unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, http.StatusInternalServerError, apperrors.ErrCodeInternal, "request validation unavailable", nil)
		return
	}
	if !result.Valid {
		writeError(w, http.StatusBadRequest, apperrors.ErrCodeInvalidRequest, "invalid query request", result.GetErrorMessages())
		return
	}

	req := decodeQueryRequest(raw)

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	env := s.engine.ProcessQuery(ctx, req.Query, req.Company, req.Context)
	writeJSON(w, http.StatusOK, env)
}

// decodeQueryRequest reads fields from an already schema-checked body.
func decodeQueryRequest(raw map[string]interface{}) queryRequest {
	var req queryRequest
	req.Query, _ = raw["query"].(string)
	req.Company, _ = raw["company"].(string)
	req.Context, _ = raw["context"].(map[string]interface{})
	return req
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.ReadyTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			s.logger.Warn("readiness check failed", map[string]interface{}{
				"dependency": name,
				"error":      err.Error(),
			})
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": results,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type errorResponse struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code apperrors.ErrorCode, message string, details []string) {
	writeJSON(w, status, errorResponse{
		Error:   string(code),
		Message: message,
		Details: details,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unknown"
	}
	if p := rctx.RoutePattern(); p != "" {
		return strings.TrimSuffix(p, "/*")
	}
	return "unknown"
}
