package pipeline

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mork-fetch/fetchd/internal/notify"
	"github.com/mork-fetch/fetchd/internal/observability"
	"github.com/mork-fetch/fetchd/internal/source"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ---------------------------------------------------------------------------
// Fetch Orchestrator — one discovery cycle, per-source failure isolation
// ---------------------------------------------------------------------------

// RetryConfig bounds the rate-limit retry loop for a single source fetch.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	Factor      float64       `yaml:"factor"`
	Jitter      time.Duration `yaml:"jitter"`
}

// DefaultRetryConfig matches the upstream scanners' retry cadence.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 800 * time.Millisecond,
		Factor:      1.6,
		Jitter:      400 * time.Millisecond,
	}
}

// OrchestratorConfig configures a discovery pipeline run.
type OrchestratorConfig struct {
	// FetchTimeout bounds every individual source call.
	FetchTimeout time.Duration
	// Limit is the per-source fetch size for scheduled cycles.
	Limit int
	// Retry bounds rate-limit retries per source per cycle.
	Retry RetryConfig
	// Watchlist mints are force-fetched every cycle via source lookup.
	Watchlist []string
}

// SourceResult is the per-source telemetry for one cycle.
type SourceResult struct {
	Source    string `json:"source"`
	Status    string `json:"status"` // ok|error
	Count     int    `json:"count"`
	LatencyMs int64  `json:"latency_ms"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// CandidateSet is the ranked, deduplicated output of one cycle.
type CandidateSet struct {
	Tokens    []token.Token  `json:"tokens"`
	CreatedAt time.Time      `json:"created_at"`
	Sources   []SourceResult `json:"sources"`
}

// Orchestrator coordinates sources, normalization, filtering, scoring,
// deduplication and ranking into a single cycle. Runs are serialized: a new
// cycle never starts while the previous one is in flight.
type Orchestrator struct {
	config    OrchestratorConfig
	primaries []source.Adapter
	fallbacks []source.Adapter
	breakers  map[string]*gobreaker.CircuitBreaker

	rules   Rules
	scorer  *Scorer
	deduper *Deduper
	ranker  *Ranker
	sink    notify.Sink
	metrics *observability.Registry

	runMu sync.Mutex

	// Stats.
	cycles        atomic.Int64
	lastCount     atomic.Int64
	lastCycleUnix atomic.Int64
}

// NewOrchestrator wires a discovery pipeline. fallbacks is an ordered list
// consulted only when every primary source contributed zero records.
func NewOrchestrator(
	config OrchestratorConfig,
	primaries, fallbacks []source.Adapter,
	rules Rules,
	scorer *Scorer,
	deduper *Deduper,
	ranker *Ranker,
	sink notify.Sink,
	metrics *observability.Registry,
) *Orchestrator {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 12 * time.Second
	}
	if config.Limit <= 0 {
		config.Limit = 25
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRetryConfig()
	}
	if metrics == nil {
		metrics = observability.NewRegistry()
	}
	if sink == nil {
		sink = notify.LogSink{}
	}

	o := &Orchestrator{
		config:    config,
		primaries: primaries,
		fallbacks: fallbacks,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		rules:     rules,
		scorer:    scorer,
		deduper:   deduper,
		ranker:    ranker,
		sink:      sink,
		metrics:   metrics,
	}
	for _, a := range append(append([]source.Adapter{}, primaries...), fallbacks...) {
		o.breakers[a.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        a.Name(),
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return o
}

// Run executes one discovery cycle and returns the ranked candidate set.
// A failing source never aborts the cycle; it just contributes nothing.
func (o *Orchestrator) Run(ctx context.Context, limit int) (*CandidateSet, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	if limit <= 0 {
		limit = o.config.Limit
	}
	start := time.Now()
	o.cycles.Add(1)

	var (
		raws    []token.RawToken
		results []SourceResult
		errors  = make(map[string]string)
		counts  = make(map[string]int)
	)

	for _, a := range o.primaries {
		records, res := o.fetchSource(ctx, a, limit)
		results = append(results, res)
		counts[a.Name()] = res.Count
		if res.ErrorKind != "" {
			errors[a.Name()] = res.ErrorKind
		}
		raws = append(raws, records...)
	}

	// Escalate to the fallback list only when the primaries came up empty,
	// and only for this cycle.
	if len(raws) == 0 && len(o.fallbacks) > 0 {
		for _, a := range o.fallbacks {
			records, res := o.fetchSource(ctx, a, limit)
			results = append(results, res)
			counts[a.Name()] = res.Count
			if res.ErrorKind != "" {
				errors[a.Name()] = res.ErrorKind
			}
			raws = append(raws, records...)
			if len(records) > 0 {
				log.Info().Str("source", a.Name()).Int("count", len(records)).
					Msg("orchestrator: fallback source engaged")
				break
			}
		}
	}

	raws = append(raws, o.fetchWatchlist(ctx)...)
	totalRaw := len(raws)

	// Synchronous stages: each produces a fresh collection.
	tokens := NormalizeAll(raws)

	filterFailures := make(map[string]int)
	kept := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if ok, reason := o.rules.Passes(t); ok {
			kept = append(kept, t)
		} else {
			filterFailures[reason]++
		}
	}

	scored := o.scorer.ScoreAll(kept)

	withinRisk := make([]token.Token, 0, len(scored))
	for _, t := range scored {
		if o.scorer.WithinThreshold(t) {
			withinRisk = append(withinRisk, t)
		} else {
			filterFailures["max_score"]++
		}
	}

	deduped := o.deduper.Dedupe(withinRisk)
	fresh := o.deduper.FilterNew(deduped)
	ranked := o.ranker.Rank(fresh)
	o.deduper.Remember(ranked)

	set := &CandidateSet{
		Tokens:    ranked,
		CreatedAt: start,
		Sources:   results,
	}

	o.lastCount.Store(int64(len(ranked)))
	o.lastCycleUnix.Store(start.Unix())
	o.metrics.Counter("fetchd_cycles_total", "Completed discovery cycles", nil).Inc()
	o.metrics.Counter("fetchd_candidates_total", "Candidates emitted across all cycles", nil).Add(int64(len(ranked)))
	o.metrics.Gauge("fetchd_last_cycle_candidates", "Candidates in the most recent cycle", nil).Set(float64(len(ranked)))
	o.metrics.Gauge("fetchd_dedup_seen", "Identities in the dedup seen memory", nil).Set(float64(o.deduper.SeenCount()))

	o.sink.CycleDone(notify.CycleSummary{
		StartedAt:       start,
		Duration:        time.Since(start),
		TotalRaw:        totalRaw,
		PerSourceCounts: counts,
		PerSourceErrors: errors,
		FilterFailures:  filterFailures,
		TopCandidates:   ranked,
	})

	log.Info().
		Int("total_raw", totalRaw).
		Int("candidates", len(ranked)).
		Int("source_errors", len(errors)).
		Dur("elapsed", time.Since(start)).
		Msg("orchestrator: cycle complete")

	return set, nil
}

// fetchSource calls one adapter behind its circuit breaker with bounded
// rate-limit retries. All failures are contained and reported as telemetry.
func (o *Orchestrator) fetchSource(ctx context.Context, a source.Adapter, limit int) ([]token.RawToken, SourceResult) {
	name := a.Name()
	start := time.Now()
	retry := o.config.Retry
	backoff := retry.BaseBackoff

	var serr *source.Error
	for attempt := 1; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, o.config.FetchTimeout)
		out, err := o.breakers[name].Execute(func() (interface{}, error) {
			return a.Fetch(cctx, limit)
		})
		cancel()

		if err == nil {
			records, _ := out.([]token.RawToken)
			o.metrics.Counter("fetchd_source_fetch_total", "Source fetches by outcome",
				map[string]string{"source": name, "status": "ok"}).Inc()
			return records, SourceResult{
				Source:    name,
				Status:    "ok",
				Count:     len(records),
				LatencyMs: time.Since(start).Milliseconds(),
			}
		}

		serr = source.Classify(name, err)
		if serr.Kind != source.KindRateLimited || attempt >= retry.MaxAttempts {
			break
		}

		sleep := backoff
		if retry.Jitter > 0 {
			sleep += time.Duration(rand.Int63n(int64(retry.Jitter)))
		}
		log.Warn().Str("source", name).Int("attempt", attempt).Dur("backoff", sleep).
			Msg("orchestrator: rate limited, backing off")
		select {
		case <-ctx.Done():
			serr = source.NewError(name, source.KindTimeout, ctx.Err())
			attempt = retry.MaxAttempts
		case <-time.After(sleep):
		}
		if ctx.Err() != nil {
			break
		}
		backoff = time.Duration(float64(backoff) * retry.Factor)
	}

	o.metrics.Counter("fetchd_source_fetch_total", "Source fetches by outcome",
		map[string]string{"source": name, "status": "error"}).Inc()
	o.metrics.Counter("fetchd_source_errors_total", "Source errors by kind",
		map[string]string{"source": name, "kind": string(serr.Kind)}).Inc()
	log.Warn().Str("source", name).Str("kind", string(serr.Kind)).Err(serr.Err).
		Msg("orchestrator: source skipped this cycle")

	return nil, SourceResult{
		Source:    name,
		Status:    "error",
		LatencyMs: time.Since(start).Milliseconds(),
		ErrorKind: string(serr.Kind),
	}
}

// fetchWatchlist force-fetches configured mints so a watched token is
// re-evaluated every cycle even when no source reports it as recent.
func (o *Orchestrator) fetchWatchlist(ctx context.Context) []token.RawToken {
	var out []token.RawToken
	for _, mint := range o.config.Watchlist {
		for _, a := range o.primaries {
			cctx, cancel := context.WithTimeout(ctx, o.config.FetchTimeout)
			raw, err := a.Lookup(cctx, mint)
			cancel()
			if err != nil || raw == nil {
				continue
			}
			out = append(out, *raw)
			break
		}
	}
	return out
}

// Start runs discovery cycles at the given interval until ctx is cancelled.
// Cycles run back to back on one goroutine, never overlapping.
func (o *Orchestrator) Start(ctx context.Context, interval time.Duration) {
	log.Info().Dur("interval", interval).Int("sources", len(o.primaries)).
		Msg("orchestrator: starting discovery loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("orchestrator: stopped")
			return
		case <-ticker.C:
			if _, err := o.Run(ctx, o.config.Limit); err != nil {
				log.Error().Err(err).Msg("orchestrator: cycle failed")
			}
		}
	}
}

// Stats is a JSON snapshot of orchestrator state.
type Stats struct {
	Cycles         int64 `json:"cycles"`
	LastCandidates int64 `json:"last_candidates"`
	LastCycleUnix  int64 `json:"last_cycle_unix"`
	DedupSeen      int   `json:"dedup_seen"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Cycles:         o.cycles.Load(),
		LastCandidates: o.lastCount.Load(),
		LastCycleUnix:  o.lastCycleUnix.Load(),
		DedupSeen:      o.deduper.SeenCount(),
	}
}
