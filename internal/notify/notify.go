package notify

import (
	"sync"
	"time"

	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Notification sink — structured events for the out-of-scope front-end
// ---------------------------------------------------------------------------

// CycleSummary is emitted once per discovery cycle.
type CycleSummary struct {
	StartedAt       time.Time      `json:"started_at"`
	Duration        time.Duration  `json:"duration"`
	TotalRaw        int            `json:"total_raw"`
	PerSourceCounts map[string]int `json:"per_source_counts"`
	// PerSourceErrors maps source tag to error kind for sources that
	// contributed nothing this cycle.
	PerSourceErrors map[string]string `json:"per_source_errors,omitempty"`
	FilterFailures  map[string]int    `json:"filter_failures,omitempty"`
	TopCandidates   []token.Token     `json:"top_candidates"`
}

// ExitReason names the terminal condition of a position monitor.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitExpired      ExitReason = "EXPIRED"
	ExitFailed       ExitReason = "FAILED" // price feed lost, not a market outcome
)

// PositionExit is emitted exactly once per terminal monitor.
type PositionExit struct {
	TradeID    string          `json:"trade_id"`
	OwnerID    string          `json:"owner_id"`
	Mint       token.Mint      `json:"mint"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Reason     ExitReason      `json:"reason"`
	Elapsed    time.Duration   `json:"elapsed"`
}

// Sink receives pipeline and monitor events. Implementations must be safe
// for concurrent use: many monitors can terminate at once.
type Sink interface {
	CycleDone(summary CycleSummary)
	PositionClosed(exit PositionExit)
}

// LogSink writes events to the structured log. The production chat delivery
// layer wraps this; the core only guarantees the event contract.
type LogSink struct{}

func (LogSink) CycleDone(s CycleSummary) {
	log.Info().
		Int("total_raw", s.TotalRaw).
		Int("candidates", len(s.TopCandidates)).
		Interface("per_source", s.PerSourceCounts).
		Interface("errors", s.PerSourceErrors).
		Dur("duration", s.Duration).
		Msg("notify: cycle summary")
}

func (LogSink) PositionClosed(e PositionExit) {
	log.Info().
		Str("trade_id", e.TradeID).
		Str("owner_id", e.OwnerID).
		Str("mint", string(e.Mint)).
		Str("entry", e.EntryPrice.String()).
		Str("exit", e.ExitPrice.String()).
		Str("reason", string(e.Reason)).
		Dur("elapsed", e.Elapsed).
		Msg("notify: position closed")
}

// Recorder captures events for tests and the /stats endpoint.
type Recorder struct {
	mu     sync.Mutex
	cycles []CycleSummary
	exits  []PositionExit
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) CycleDone(s CycleSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, s)
}

func (r *Recorder) PositionClosed(e PositionExit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, e)
}

func (r *Recorder) Cycles() []CycleSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CycleSummary, len(r.cycles))
	copy(out, r.cycles)
	return out
}

func (r *Recorder) Exits() []PositionExit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PositionExit, len(r.exits))
	copy(out, r.exits)
	return out
}

// Fanout forwards each event to every wrapped sink.
type Fanout []Sink

func (f Fanout) CycleDone(s CycleSummary) {
	for _, sink := range f {
		sink.CycleDone(s)
	}
}

func (f Fanout) PositionClosed(e PositionExit) {
	for _, sink := range f {
		sink.PositionClosed(e)
	}
}
