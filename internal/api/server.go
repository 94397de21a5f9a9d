package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solarscan/scanbridge/internal/config"
	"github.com/solarscan/scanbridge/internal/invoker"
	"github.com/solarscan/scanbridge/internal/metrics"
	"github.com/solarscan/scanbridge/internal/scan"
)

const healthMsg = "scan bridge alive"

// Runner abstracts the worker invoker so handlers can be tested without
// spawning processes.
type Runner interface {
	Invoke(ctx context.Context, payload []byte) (*invoker.Result, error)
}

// Server wires HTTP handlers to the worker runner.
type Server struct {
	router chi.Router
	runner Runner
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{runner: runner, cfg: cfg, logger: logger}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(corsMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/health", s.health)
	r.Post("/scan", s.scan)
	r.Handle("/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type successResponse struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data"`
}

type failureResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "msg": healthMsg})
}

func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes())

	var payload any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeFailure(w, http.StatusBadRequest, "request body too large", nil)
			return
		}
		s.writeFailure(w, http.StatusBadRequest, "invalid JSON", nil)
		return
	}

	batch := scan.Normalize(payload)
	if err := batch.Validate(); err != nil {
		s.writeFailure(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	metrics.ObserveBatch(len(batch))

	wire, err := json.Marshal(batch)
	if err != nil {
		s.writeFailure(w, http.StatusInternalServerError, "encode batch: "+err.Error(), nil)
		return
	}

	res, err := s.runner.Invoke(r.Context(), wire)
	if err != nil {
		var clsErr *invoker.Error
		if errors.As(err, &clsErr) {
			s.writeFailure(w, http.StatusInternalServerError, clsErr.Message, clsErr.Details())
			return
		}
		s.writeFailure(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	if res.Diagnostics != "" {
		s.logger.Debug("worker diagnostics", zap.String("stderr", res.Diagnostics))
	}
	s.writeJSON(w, http.StatusOK, successResponse{OK: true, Data: res.Document})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, status int, msg string, details any) {
	s.writeJSON(w, status, failureResponse{OK: false, Error: msg, Details: details})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware permits cross-origin calls from any origin; the bridge is
// deployed behind operator tooling that runs on arbitrary hosts.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeFailure(w, http.StatusInternalServerError, "internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
