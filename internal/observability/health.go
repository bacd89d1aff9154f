package observability

import (
	"encoding/json"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Health/stats HTTP surface
// ---------------------------------------------------------------------------

// StatsFunc returns a JSON-serializable snapshot of runtime statistics.
type StatsFunc func() any

// Server exposes /healthz, /stats and /metrics.
type Server struct {
	startedAt time.Time
	exporter  *Exporter
	stats     StatsFunc
}

// NewServer builds the observability HTTP surface.
func NewServer(registry *Registry, stats StatsFunc) *Server {
	return &Server{
		startedAt: time.Now(),
		exporter:  NewExporter(registry),
		stats:     stats,
	}
}

// Handler returns the HTTP mux for the observability endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.exporter)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"uptime_s":  int(time.Since(s.startedAt).Seconds()),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var payload any
	if s.stats != nil {
		payload = s.stats()
	}
	writeJSON(w, payload)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
