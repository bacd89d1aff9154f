package monitor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mork-fetch/fetchd/internal/notify"
	"github.com/mork-fetch/fetchd/internal/observability"
	"github.com/mork-fetch/fetchd/internal/oracle"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Monitor Registry — owner-scoped lifecycle for position monitors
// ---------------------------------------------------------------------------

type entry struct {
	monitor *Monitor
	cancel  context.CancelFunc
	done    chan struct{}
}

// Registry owns every running monitor, keyed by owner then trade ID.
// Opening assigns the trade ID; terminal monitors remove themselves.
type Registry struct {
	config  Config
	prices  oracle.Oracle
	sink    notify.Sink
	metrics *observability.Registry

	mu     sync.Mutex
	owners map[string]map[string]*entry

	opened atomic.Int64
	closed atomic.Int64
}

// NewRegistry creates a monitor registry.
func NewRegistry(config Config, prices oracle.Oracle, sink notify.Sink, metrics *observability.Registry) *Registry {
	if metrics == nil {
		metrics = observability.NewRegistry()
	}
	if sink == nil {
		sink = notify.LogSink{}
	}
	return &Registry{
		config:  config,
		prices:  prices,
		sink:    sink,
		metrics: metrics,
		owners:  make(map[string]map[string]*entry),
	}
}

// Open starts monitoring pos on its own goroutine and returns the assigned
// trade ID. The monitor runs until a terminal state, CancelAll, or ctx.
func (r *Registry) Open(ctx context.Context, pos Position) string {
	pos.TradeID = uuid.NewString()

	mctx, cancel := context.WithCancel(ctx)
	e := &entry{cancel: cancel, done: make(chan struct{})}

	sink := sinkFunc(func(exit notify.PositionExit) {
		r.metrics.Counter("fetchd_position_exits_total", "Position exits by reason",
			map[string]string{"reason": string(exit.Reason)}).Inc()
		r.sink.PositionClosed(exit)
	})

	e.monitor = New(r.config, pos, r.prices, sink, func(m *Monitor) {
		r.remove(m.Position().OwnerID, m.Position().TradeID)
		close(e.done)
	})

	r.mu.Lock()
	byTrade, ok := r.owners[pos.OwnerID]
	if !ok {
		byTrade = make(map[string]*entry)
		r.owners[pos.OwnerID] = byTrade
	}
	byTrade[pos.TradeID] = e
	r.mu.Unlock()

	r.opened.Add(1)
	r.metrics.Gauge("fetchd_monitors_active", "Currently running position monitors", nil).Inc()

	go e.monitor.Run(mctx)

	log.Info().
		Str("trade_id", pos.TradeID).
		Str("owner_id", pos.OwnerID).
		Str("mint", string(pos.Mint)).
		Msg("registry: monitor opened")

	return pos.TradeID
}

// CancelAll stops every monitor for an owner and waits for their goroutines
// to exit. Cancelled monitors emit no exit notification. Returns how many
// monitors were cancelled.
func (r *Registry) CancelAll(ownerID string) int {
	r.mu.Lock()
	byTrade := r.owners[ownerID]
	entries := make([]*entry, 0, len(byTrade))
	for _, e := range byTrade {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
	for _, e := range entries {
		<-e.done
	}

	if len(entries) > 0 {
		log.Info().Str("owner_id", ownerID).Int("count", len(entries)).
			Msg("registry: monitors cancelled")
	}
	return len(entries)
}

// ListActive snapshots every non-terminal monitor for an owner.
func (r *Registry) ListActive(ownerID string) []Snapshot {
	r.mu.Lock()
	byTrade := r.owners[ownerID]
	monitors := make([]*Monitor, 0, len(byTrade))
	for _, e := range byTrade {
		monitors = append(monitors, e.monitor)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(monitors))
	for _, m := range monitors {
		snap := m.Snapshot()
		if snap.State == StateMonitoring {
			out = append(out, snap)
		}
	}
	return out
}

// ActiveCount returns the total number of registered monitors.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, byTrade := range r.owners {
		n += len(byTrade)
	}
	return n
}

func (r *Registry) remove(ownerID, tradeID string) {
	r.mu.Lock()
	if byTrade, ok := r.owners[ownerID]; ok {
		if _, present := byTrade[tradeID]; present {
			delete(byTrade, tradeID)
			if len(byTrade) == 0 {
				delete(r.owners, ownerID)
			}
			r.closed.Add(1)
			r.metrics.Gauge("fetchd_monitors_active", "Currently running position monitors", nil).Dec()
		}
	}
	r.mu.Unlock()
}

// RegistryStats is a JSON snapshot of registry activity.
type RegistryStats struct {
	Active int   `json:"active"`
	Opened int64 `json:"opened"`
	Closed int64 `json:"closed"`
}

func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		Active: r.ActiveCount(),
		Opened: r.opened.Load(),
		Closed: r.closed.Load(),
	}
}

// sinkFunc adapts a function to the notify.Sink position path.
type sinkFunc func(notify.PositionExit)

func (f sinkFunc) CycleDone(notify.CycleSummary)        {}
func (f sinkFunc) PositionClosed(e notify.PositionExit) { f(e) }
