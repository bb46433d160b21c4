// Package capture implements the edge's HTTP dispatcher (spec.md §4.1): the
// five URL shapes, same-host gated internal endpoints, and the synchronous
// capture+enqueue path. Grounded on the teacher's internal/proxy/server.go
// chi-mounting and graceful-shutdown shape.
package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/smartpixl/smartpixl/internal/fastenrich"
	"github.com/smartpixl/smartpixl/internal/record"
)

// Enqueuer is the pipe-client contract the dispatcher enqueues captured
// records onto (spec.md §4.3): never blocks, drop-oldest on a full queue.
type Enqueuer interface {
	TryEnqueue(record.Record) bool
}

// ScriptRenderer produces the per-request fingerprint script text for the
// `.js` shape (spec.md §4.1, script template substitution cache).
type ScriptRenderer interface {
	Render(company, pixel, domain string) ([]byte, error)
}

// HealthInfo reports the fields the same-host health endpoint exposes.
type HealthInfo struct {
	PipeConnected bool          `json:"pipeConnected"`
	QueueDepth    int           `json:"queueDepth"`
	Uptime        time.Duration `json:"uptimeNanoseconds"` // encoded as integer nanoseconds
}

// HealthReporter supplies live values for /internal/health.
type HealthReporter interface {
	Health() HealthInfo
}

// CircuitResetter is invoked by /internal/circuit-reset to signal the engine
// side to reset its breaker state (spec.md §4.1).
type CircuitResetter interface {
	ResetCircuit() error
}

// Handler wires the dispatcher's dependencies together.
type Handler struct {
	Enricher   *fastenrich.Bank
	Enqueue    Enqueuer
	Script     ScriptRenderer
	SameHost   *SameHostChecker
	Health     HealthReporter
	Breaker    CircuitResetter
}

// NewRouter builds the chi router implementing spec.md §4.1's URL shapes.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/internal/health", h.handleHealth)
	r.Get("/internal/circuit-reset", h.handleCircuitReset)
	r.Post("/internal/circuit-reset", h.handleCircuitReset)
	r.Handle("/*", http.HandlerFunc(h.handlePixel))

	return r
}

func (h *Handler) handlePixel(w http.ResponseWriter, req *http.Request) {
	shape := parseShape(req.URL.Path)

	rec := record.Record{
		RemoteAddress: req.RemoteAddr,
		RequestPath:   req.URL.Path,
		QueryString:   req.URL.RawQuery,
		UserAgent:     req.UserAgent(),
		Referer:       req.Referer(),
		ReceivedAt:    time.Now(),
	}
	if headers, err := json.Marshal(req.Header); err == nil {
		rec.HeadersJson = string(headers)
	}

	switch shape.kind {
	case shapeJS:
		if !shape.identOK {
			http.Error(w, "invalid identifier", http.StatusBadRequest)
			return
		}
		h.writeScript(w, shape)
		return

	case shapeGIF:
		rec.CompanyID = shape.company
		rec.PixelID = shape.pixel
		if !shape.identOK {
			// Never reveal validity to the caller: still capture, tag as a
			// bot trap, still serve the GIF (spec.md §4.1).
			rec = fastenrich.BotTrap(rec)
		}
		h.captureAndServe(rec)
		writeGIF(w)
		return

	default:
		rec = fastenrich.BotTrap(rec)
		h.captureAndServe(rec)
		writeGIF(w)
	}
}

func (h *Handler) captureAndServe(rec record.Record) {
	if h.Enricher != nil {
		rec = h.Enricher.Enrich(rec)
	}
	if h.Enqueue != nil {
		h.Enqueue.TryEnqueue(rec)
	}
}

func writeGIF(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(transparentGIF)
}

func (h *Handler) writeScript(w http.ResponseWriter, shape parsedShape) {
	if h.Script == nil {
		http.Error(w, "script unavailable", http.StatusServiceUnavailable)
		return
	}
	body, err := h.Script.Render(shape.company, shape.pixel, shape.domain)
	if err != nil {
		log.Warn().Err(err).Str("company", shape.company).Str("pixel", shape.pixel).
			Msg("capture: script render failed")
		http.Error(w, "script unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) handleHealth(w http.ResponseWriter, req *http.Request) {
	if !h.sameHostOnly(w, req) {
		return
	}
	var info HealthInfo
	if h.Health != nil {
		info = h.Health.Health()
	}
	writeJSON(w, info)
}

func (h *Handler) handleCircuitReset(w http.ResponseWriter, req *http.Request) {
	if !h.sameHostOnly(w, req) {
		return
	}
	ack := map[string]any{"ok": true}
	if h.Breaker != nil {
		if err := h.Breaker.ResetCircuit(); err != nil {
			ack["ok"] = false
			ack["error"] = err.Error()
		}
	}
	writeJSON(w, ack)
}

// sameHostOnly returns 404 (never 403, so the endpoint's existence is never
// disclosed) for any caller that isn't same-host (spec.md §4.1).
func (h *Handler) sameHostOnly(w http.ResponseWriter, req *http.Request) bool {
	if h.SameHost != nil && h.SameHost.Allowed(req.RemoteAddr) {
		return true
	}
	http.NotFound(w, req)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

// Shutdown is a thin wrapper so callers needn't import net/http directly to
// perform a graceful stop from the daemon orchestrator.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
