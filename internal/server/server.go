package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/vscarpenter/spend-monitor/internal/pipeline"
	"github.com/vscarpenter/spend-monitor/pkg/registry"
)

// Server exposes the external trigger surface: a run endpoint for the
// scheduler, device listing, and health probes.
type Server struct {
	pipeline *pipeline.Pipeline
	devices  *registry.DeviceRegistry
	mux      *http.ServeMux
	logger   *slog.Logger
}

// NewServer creates the trigger server.
func NewServer(p *pipeline.Pipeline, devices *registry.DeviceRegistry, logger *slog.Logger) *Server {
	s := &Server{
		pipeline: p,
		devices:  devices,
		mux:      http.NewServeMux(),
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/run", s.handleRun)
	s.mux.HandleFunc("GET /api/v1/devices", s.handleDevices)
	s.mux.HandleFunc("GET /api/v1/push-health", s.handlePushHealth)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.pipeline.Run(r.Context())
	if err != nil {
		s.logger.Error("pipeline run", "error", err)
		http.Error(w, "run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	regs, err := s.devices.ListActive(ctx)
	if err != nil {
		s.logger.Error("list devices", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(regs)
}

func (s *Server) handlePushHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	report, err := s.devices.HealthCheck(ctx)
	if err != nil {
		s.logger.Error("push health check", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
