// Package server exposes the status HTTP endpoints: health, Prometheus
// metrics, a JSON view of the backup entities and the runtime log level.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zorak1103/ha-backup-source/internal/hub"
	"github.com/zorak1103/ha-backup-source/internal/logging"
)

const entitiesTimeout = 5 * time.Second

// StatusProvider is the read side of the hub the server reports on.
type StatusProvider interface {
	Connected() bool
	Entities(ctx context.Context) ([]hub.EntityStatus, error)
}

// Server is the status HTTP server.
type Server struct {
	status     StatusProvider
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	port       int
	logger     *logging.Logger
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

// EntitiesResponse is the body of GET /api/entities.
type EntitiesResponse struct {
	Entities []hub.EntityStatus `json:"entities"`
}

// LogLevelResponse is the body of GET and PUT /api/log-level.
type LogLevelResponse struct {
	Level string `json:"level"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new status server instance.
func NewServer(status StatusProvider, gatherer prometheus.Gatherer, port int, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New(logging.LevelInfo)
	}
	s := &Server{
		status:   status,
		gatherer: gatherer,
		port:     port,
		logger:   logger,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/entities", s.handleEntities)
	mux.HandleFunc("/api/log-level", s.handleLogLevel)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.logRequests(mux)
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("Status server starting", "port", s.port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Status server shutting down...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request", "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr, "duration", time.Since(start))
	})
}

// handleHealth reports 200 while Home Assistant is connected, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{Status: "ok", Connected: s.status.Connected()}
	code := http.StatusOK
	if !resp.Connected {
		resp.Status = "disconnected"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), entitiesTimeout)
	defer cancel()

	entities, err := s.status.Entities(ctx)
	if err != nil {
		s.logger.Error("Failed to list entities", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.logger.Debug("Listed entities", "count", len(entities))
	s.writeJSON(w, http.StatusOK, EntitiesResponse{Entities: entities})
}

// handleLogLevel reads or changes the process log level at runtime.
func (s *Server) handleLogLevel(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req LogLevelResponse
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		level, err := logging.ParseLevel(req.Level)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.SetLevel(level)
		s.logger.Info("Log level changed", "level", logging.LevelString(level))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, LogLevelResponse{Level: logging.LevelString(s.logger.Level())})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if s.logger.IsTraceEnabled() {
		respJSON, err := json.MarshalIndent(body, "", "  ")
		if err == nil {
			s.logger.Trace("HTTP Response", "status", code, "response", string(respJSON))
		}
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, ErrorResponse{Error: message})
}
