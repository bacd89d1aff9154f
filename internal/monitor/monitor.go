package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/mork-fetch/fetchd/internal/notify"
	"github.com/mork-fetch/fetchd/internal/oracle"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Position Monitor — dedicated goroutine per open position
// Polls the price oracle and exits on take-profit, stop-loss, trailing stop,
// window expiry, or a dead price feed
// ---------------------------------------------------------------------------

// Config configures position monitoring.
type Config struct {
	PollIntervalMs int `yaml:"poll_interval_ms"` // price poll interval (default 10s)
	WindowS        int `yaml:"window_s"`         // max monitoring window (default 4h)
	// MissCeiling is how many consecutive failed price polls are tolerated
	// before the monitor gives up with a FAILED exit.
	MissCeiling   int `yaml:"miss_ceiling"`
	PriceTimeoutS int `yaml:"price_timeout_s"` // per-poll oracle timeout
}

// DefaultConfig returns monitoring defaults.
func DefaultConfig() Config {
	return Config{
		PollIntervalMs: 10000,
		WindowS:        4 * 60 * 60,
		MissCeiling:    3,
		PriceTimeoutS:  10,
	}
}

// State is the monitor lifecycle state.
type State string

const (
	StateMonitoring State = "MONITORING"
	StateTriggered  State = "TRIGGERED"
	StateExpired    State = "EXPIRED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether s is an end state.
func (s State) Terminal() bool { return s != StateMonitoring }

// Position describes one position to watch. Percentage thresholds are
// relative to EntryPrice; a threshold <= 0 disables that exit rule.
type Position struct {
	TradeID         string
	OwnerID         string
	Mint            token.Mint
	EntryPrice      decimal.Decimal
	Amount          decimal.Decimal
	TakeProfitPct   float64
	StopLossPct     float64
	TrailingStopPct float64
	StartedAt       time.Time
}

// Snapshot is a point-in-time view of a running monitor.
type Snapshot struct {
	TradeID    string          `json:"trade_id"`
	OwnerID    string          `json:"owner_id"`
	Mint       token.Mint      `json:"mint"`
	State      State           `json:"state"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	LastPrice  decimal.Decimal `json:"last_price"`
	PeakPrice  decimal.Decimal `json:"peak_price"`
	ChangePct  float64         `json:"change_pct"`
	Misses     int             `json:"misses"`
	StartedAt  time.Time       `json:"started_at"`
}

// Monitor watches a single position. All state mutation happens on the Run
// goroutine; readers go through Snapshot.
type Monitor struct {
	config Config
	pos    Position
	prices oracle.Oracle
	sink   notify.Sink
	onDone func(*Monitor)

	mu        sync.Mutex
	state     State
	lastPrice decimal.Decimal
	peakPrice decimal.Decimal
	misses    int
}

// New creates a monitor for pos. onDone is invoked after the monitor reaches
// a terminal state or is cancelled; it may be nil.
func New(config Config, pos Position, prices oracle.Oracle, sink notify.Sink, onDone func(*Monitor)) *Monitor {
	if config.PollIntervalMs <= 0 {
		config.PollIntervalMs = DefaultConfig().PollIntervalMs
	}
	if config.WindowS <= 0 {
		config.WindowS = DefaultConfig().WindowS
	}
	if config.MissCeiling <= 0 {
		config.MissCeiling = DefaultConfig().MissCeiling
	}
	if config.PriceTimeoutS <= 0 {
		config.PriceTimeoutS = DefaultConfig().PriceTimeoutS
	}
	if pos.StartedAt.IsZero() {
		pos.StartedAt = time.Now()
	}
	return &Monitor{
		config:    config,
		pos:       pos,
		prices:    prices,
		sink:      sink,
		onDone:    onDone,
		state:     StateMonitoring,
		lastPrice: pos.EntryPrice,
		peakPrice: pos.EntryPrice,
	}
}

// Position returns the monitored position.
func (m *Monitor) Position() Position { return m.pos }

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a consistent view of the monitor.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		TradeID:    m.pos.TradeID,
		OwnerID:    m.pos.OwnerID,
		Mint:       m.pos.Mint,
		State:      m.state,
		EntryPrice: m.pos.EntryPrice,
		LastPrice:  m.lastPrice,
		PeakPrice:  m.peakPrice,
		ChangePct:  percentChange(m.pos.EntryPrice, m.lastPrice),
		Misses:     m.misses,
		StartedAt:  m.pos.StartedAt,
	}
}

// Run polls until a terminal state or cancellation. A cancelled monitor
// emits no notification; every terminal state emits exactly one.
func (m *Monitor) Run(ctx context.Context) {
	defer func() {
		if m.onDone != nil {
			m.onDone(m)
		}
	}()

	log.Debug().
		Str("trade_id", m.pos.TradeID).
		Str("mint", string(m.pos.Mint)).
		Str("entry", m.pos.EntryPrice.String()).
		Msg("monitor: started")

	ticker := time.NewTicker(time.Duration(m.config.PollIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	deadline := m.pos.StartedAt.Add(time.Duration(m.config.WindowS) * time.Second)

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("trade_id", m.pos.TradeID).Msg("monitor: cancelled")
			return
		case <-ticker.C:
			if time.Now().After(deadline) {
				m.finish(ctx, notify.ExitExpired, m.lastKnown())
				return
			}
			if done := m.evaluate(ctx); done {
				return
			}
		}
	}
}

// evaluate runs one poll cycle. Returns true when the monitor terminated.
func (m *Monitor) evaluate(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, time.Duration(m.config.PriceTimeoutS)*time.Second)
	price, err := m.prices.Price(pctx, m.pos.Mint)
	cancel()

	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		m.mu.Lock()
		m.misses++
		misses := m.misses
		m.mu.Unlock()

		log.Warn().
			Str("trade_id", m.pos.TradeID).
			Str("mint", string(m.pos.Mint)).
			Int("misses", misses).
			Err(err).
			Msg("monitor: price poll failed")

		if misses > m.config.MissCeiling {
			m.finish(ctx, notify.ExitFailed, m.lastKnown())
			return true
		}
		return false
	}

	m.mu.Lock()
	m.misses = 0
	m.lastPrice = price
	if price.GreaterThan(m.peakPrice) {
		m.peakPrice = price
	}
	peak := m.peakPrice
	m.mu.Unlock()

	change := percentChange(m.pos.EntryPrice, price)

	if m.pos.TakeProfitPct > 0 && change >= m.pos.TakeProfitPct {
		m.finish(ctx, notify.ExitTakeProfit, price)
		return true
	}
	if m.pos.StopLossPct > 0 && change <= -m.pos.StopLossPct {
		m.finish(ctx, notify.ExitStopLoss, price)
		return true
	}
	// Trailing stop arms only once the position has been above entry.
	if m.pos.TrailingStopPct > 0 && peak.GreaterThan(m.pos.EntryPrice) {
		drawdown := percentChange(peak, price)
		if drawdown <= -m.pos.TrailingStopPct {
			m.finish(ctx, notify.ExitTrailingStop, price)
			return true
		}
	}
	return false
}

// finish moves the monitor to its terminal state and emits the exit event,
// unless cancellation won the race.
func (m *Monitor) finish(ctx context.Context, reason notify.ExitReason, exitPrice decimal.Decimal) {
	m.mu.Lock()
	if m.state.Terminal() {
		m.mu.Unlock()
		return
	}
	switch reason {
	case notify.ExitExpired:
		m.state = StateExpired
	case notify.ExitFailed:
		m.state = StateFailed
	default:
		m.state = StateTriggered
	}
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	elapsed := time.Since(m.pos.StartedAt)
	log.Info().
		Str("trade_id", m.pos.TradeID).
		Str("mint", string(m.pos.Mint)).
		Str("reason", string(reason)).
		Str("exit", exitPrice.String()).
		Dur("elapsed", elapsed).
		Msg("monitor: position closed")

	m.sink.PositionClosed(notify.PositionExit{
		TradeID:    m.pos.TradeID,
		OwnerID:    m.pos.OwnerID,
		Mint:       m.pos.Mint,
		EntryPrice: m.pos.EntryPrice,
		ExitPrice:  exitPrice,
		Reason:     reason,
		Elapsed:    elapsed,
	})
}

func (m *Monitor) lastKnown() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrice
}

// percentChange returns (current-base)/base*100, or 0 for a zero base.
func percentChange(base, current decimal.Decimal) float64 {
	if base.IsZero() {
		return 0
	}
	pct, _ := current.Sub(base).Div(base).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
