// Package api exposes the status HTTP interface for the pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/metrics"
)

// LatestRankingsName is the artifact the rankings endpoint serves.
const LatestRankingsName = "rankings-latest.json"

const requestTimeout = 30 * time.Second

// ArtifactReader reads a previously written artifact by name.
type ArtifactReader interface {
	ReadArtifact(ctx context.Context, name string) ([]byte, error)
}

// Server wires the status routes to the artifact store.
type Server struct {
	router    chi.Router
	artifacts ArtifactReader
	log       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(artifacts ArtifactReader, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{artifacts: artifacts, log: log}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/rankings/latest", s.latestRankings)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.log, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.artifacts == nil {
		writeError(s.log, w, http.StatusServiceUnavailable, "artifact store unavailable")
		return
	}
	writeJSON(s.log, w, http.StatusOK, map[string]string{"status": "ready"})
}

// latestRankings serves the most recent ranked artifact verbatim. A run
// must finish at least once before this returns anything.
func (s *Server) latestRankings(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		writeError(s.log, w, http.StatusServiceUnavailable, "artifact store unavailable")
		return
	}
	data, err := s.artifacts.ReadArtifact(r.Context(), LatestRankingsName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(s.log, w, http.StatusNotFound, "no rankings produced yet")
			return
		}
		s.log.Error("read latest rankings failed", zap.Error(err))
		writeError(s.log, w, http.StatusInternalServerError, "failed to read rankings")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		s.log.Error("write rankings response failed", zap.Error(err))
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, elapsed)
		s.log.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", elapsed),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("error", rec))
				writeError(s.log, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(log *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(log *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(log, w, status, map[string]string{"error": msg})
}
