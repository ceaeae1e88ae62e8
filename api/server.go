// Package api serves the daemon's health, status and metrics endpoints.
// It only reports on runs; it never triggers one.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tello-renewal/core/renewal"
	"tello-renewal/internal/metrics"
)

// Status is the body of GET /status
type Status struct {
	Version string          `json:"version"`
	LastRun *renewal.Result `json:"last_run"`
	NextRun *time.Time      `json:"next_run,omitempty"`
}

// Server is the status server
type Server struct {
	mux     *http.ServeMux
	srv     *http.Server
	version string
	nextRun func(time.Time) time.Time
	log     *zap.Logger

	mu   sync.RWMutex
	last *renewal.Result
}

// NewServer creates a status server. nextRun may be nil.
func NewServer(addr, version string, nextRun func(time.Time) time.Time, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		mux:     http.NewServeMux(),
		version: version,
		nextRun: nextRun,
		log:     log,
	}
	s.registerRoutes()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// Record stores the result of the latest run
func (s *Server) Record(res renewal.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &res
}

// LastRun returns the latest recorded run, if any
func (s *Server) LastRun() (renewal.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return renewal.Result{}, false
	}
	return *s.last, true
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}, http.StatusOK)
}

// handleStatus handles GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{Version: s.version}
	if last, ok := s.LastRun(); ok {
		status.LastRun = &last
	}
	if s.nextRun != nil {
		next := s.nextRun(time.Now())
		status.NextRun = &next
	}
	s.writeJSON(w, status, http.StatusOK)
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("Failed to write response", zap.Error(err))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("Status server listening", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
