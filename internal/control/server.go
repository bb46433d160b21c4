// Package control implements the engine's same-host control surface: the
// HTTP twin of the edge's /internal/health and /internal/circuit-reset
// routes (spec.md §4.1, §4.7), exposed on EngineConfig.ControlAddr so the
// edge process can forward an operator's circuit-reset request to the
// process that actually owns the breaker. Grounded on the teacher's
// internal/proxy/server.go same-host gating, shared via capture.SameHostChecker
// rather than duplicated.
package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smartpixl/smartpixl/internal/capture"
)

// HealthInfo reports the engine-side fields the control surface exposes.
type HealthInfo struct {
	CircuitState string `json:"circuitState"`
	QueueDepth   int    `json:"queueDepth"`
}

// HealthReporter supplies live values for the engine's /internal/health.
type HealthReporter interface {
	Health() HealthInfo
}

// CircuitResetter forces the bulk writer's breaker back to Closed.
type CircuitResetter interface {
	ResetCircuit() error
}

// Server wires the engine's control-surface dependencies.
type Server struct {
	SameHost *capture.SameHostChecker
	Health   HealthReporter
	Breaker  CircuitResetter
}

// NewRouter builds the chi router for the engine's control surface.
func NewRouter(s *Server) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/internal/health", s.handleHealth)
	r.Get("/internal/circuit-reset", s.handleCircuitReset)
	r.Post("/internal/circuit-reset", s.handleCircuitReset)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	if !s.sameHostOnly(w, req) {
		return
	}
	var info HealthInfo
	if s.Health != nil {
		info = s.Health.Health()
	}
	writeJSON(w, info)
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, req *http.Request) {
	if !s.sameHostOnly(w, req) {
		return
	}
	ack := map[string]any{"ok": true}
	if s.Breaker != nil {
		if err := s.Breaker.ResetCircuit(); err != nil {
			ack["ok"] = false
			ack["error"] = err.Error()
		}
	}
	writeJSON(w, ack)
}

// sameHostOnly returns 404 (never 403) for any caller that isn't same-host,
// matching the edge dispatcher's disclosure policy (spec.md §4.1).
func (s *Server) sameHostOnly(w http.ResponseWriter, req *http.Request) bool {
	if s.SameHost != nil && s.SameHost.Allowed(req.RemoteAddr) {
		return true
	}
	http.NotFound(w, req)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
