package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/mork-fetch/fetchd/internal/notify"
	"github.com/mork-fetch/fetchd/internal/oracle"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		PollIntervalMs: 10,
		WindowS:        3600,
		MissCeiling:    3,
		PriceTimeoutS:  1,
	}
}

func testPosition(entry float64) Position {
	return Position{
		TradeID:    "trade-1",
		OwnerID:    "owner-1",
		Mint:       "MintAddr111",
		EntryPrice: decimal.NewFromFloat(entry),
		Amount:     decimal.NewFromFloat(1000),
	}
}

func waitForExit(t *testing.T, rec *notify.Recorder) notify.PositionExit {
	t.Helper()
	require.Eventually(t, func() bool { return len(rec.Exits()) > 0 },
		2*time.Second, 5*time.Millisecond)
	return rec.Exits()[0]
}

func TestMonitor_TakeProfit(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("MintAddr111", 1.1, 1.3, 1.6)

	pos := testPosition(1.0)
	pos.TakeProfitPct = 50

	m := New(fastConfig(), pos, prices, rec, nil)
	go m.Run(context.Background())

	exit := waitForExit(t, rec)
	assert.Equal(t, notify.ExitTakeProfit, exit.Reason)
	assert.True(t, exit.ExitPrice.Equal(decimal.NewFromFloat(1.6)))
	assert.Equal(t, "trade-1", exit.TradeID)
	assert.Equal(t, StateTriggered, m.State())
}

func TestMonitor_StopLoss(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("MintAddr111", 1.95, 1.79)

	pos := testPosition(2.0)
	pos.StopLossPct = 10

	m := New(fastConfig(), pos, prices, rec, nil)
	go m.Run(context.Background())

	exit := waitForExit(t, rec)
	assert.Equal(t, notify.ExitStopLoss, exit.Reason)
	assert.True(t, exit.ExitPrice.Equal(decimal.NewFromFloat(1.79)))
}

func TestMonitor_TrailingStop(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	// Peak at 1.5, then a >10% drawdown from peak while still above entry.
	prices.QueuePrices("MintAddr111", 1.2, 1.5, 1.34)

	pos := testPosition(1.0)
	pos.TrailingStopPct = 10

	m := New(fastConfig(), pos, prices, rec, nil)
	go m.Run(context.Background())

	exit := waitForExit(t, rec)
	assert.Equal(t, notify.ExitTrailingStop, exit.Reason)
	assert.True(t, exit.ExitPrice.Equal(decimal.NewFromFloat(1.34)))
}

func TestMonitor_TrailingStopNotArmedBelowEntry(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	// Never above entry: a drop must not trip the trailing stop.
	prices.QueuePrices("MintAddr111", 0.95, 0.84)

	pos := testPosition(1.0)
	pos.TrailingStopPct = 10

	m := New(fastConfig(), pos, prices, rec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.Exits())
	assert.Equal(t, StateMonitoring, m.State())
}

func TestMonitor_MissesBelowCeilingRecover(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueueError("MintAddr111", oracle.ErrUnavailable)
	prices.QueueError("MintAddr111", oracle.ErrUnavailable)
	prices.QueuePrices("MintAddr111", 1.01)

	m := New(fastConfig(), testPosition(1.0), prices, rec, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		snap := m.Snapshot()
		return snap.Misses == 0 && snap.LastPrice.Equal(decimal.NewFromFloat(1.01))
	}, 2*time.Second, 5*time.Millisecond)

	assert.Empty(t, rec.Exits())
	assert.Equal(t, StateMonitoring, m.State())
}

func TestMonitor_FeedLossBeyondCeilingFails(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub() // no script: every poll misses

	m := New(fastConfig(), testPosition(1.0), prices, rec, nil)
	go m.Run(context.Background())

	exit := waitForExit(t, rec)
	assert.Equal(t, notify.ExitFailed, exit.Reason)
	// No price was ever observed; the exit reports the entry as last known.
	assert.True(t, exit.ExitPrice.Equal(decimal.NewFromFloat(1.0)))
	assert.Equal(t, StateFailed, m.State())
}

func TestMonitor_WindowExpiry(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("MintAddr111", 1.05)

	pos := testPosition(1.0)
	pos.TakeProfitPct = 500 // unreachable
	pos.StartedAt = time.Now().Add(-2 * time.Hour)

	cfg := fastConfig()
	cfg.WindowS = 3600 // window already elapsed

	m := New(cfg, pos, prices, rec, nil)
	go m.Run(context.Background())

	exit := waitForExit(t, rec)
	assert.Equal(t, notify.ExitExpired, exit.Reason)
	assert.Equal(t, StateExpired, m.State())
}

func TestMonitor_CancelledEmitsNothing(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("MintAddr111", 1.01)

	done := make(chan struct{})
	m := New(fastConfig(), testPosition(1.0), prices, rec, func(*Monitor) { close(done) })
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	assert.Empty(t, rec.Exits())
}

func TestMonitor_EmitsAtMostOnce(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("MintAddr111", 2.0) // repeats: every poll is above TP

	pos := testPosition(1.0)
	pos.TakeProfitPct = 50

	m := New(fastConfig(), pos, prices, rec, nil)
	go m.Run(context.Background())

	waitForExit(t, rec)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.Exits(), 1)
}

func TestMonitor_OnDoneCalledAfterTerminal(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("MintAddr111", 3.0)

	pos := testPosition(1.0)
	pos.TakeProfitPct = 50

	done := make(chan struct{})
	m := New(fastConfig(), pos, prices, rec, func(*Monitor) { close(done) })
	go m.Run(context.Background())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onDone was not called")
	}
	assert.Equal(t, StateTriggered, m.State())
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 60.0, percentChange(decimal.NewFromFloat(1.0), decimal.NewFromFloat(1.6)), 0.001)
	assert.InDelta(t, -10.5, percentChange(decimal.NewFromFloat(2.0), decimal.NewFromFloat(1.79)), 0.001)
	assert.Equal(t, 0.0, percentChange(decimal.Zero, decimal.NewFromFloat(5)))
}
