package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mork-fetch/fetchd/internal/notify"
	"github.com/mork-fetch/fetchd/internal/oracle"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(rec *notify.Recorder, prices oracle.Oracle) *Registry {
	return NewRegistry(fastConfig(), prices, rec, nil)
}

func TestRegistry_OpenAssignsTradeID(t *testing.T) {
	rec := notify.NewRecorder()
	reg := newTestRegistry(rec, oracle.NewStub())
	defer reg.CancelAll("owner-1")

	id := reg.Open(context.Background(), Position{
		OwnerID:    "owner-1",
		Mint:       "MintAddr111",
		EntryPrice: decimal.NewFromFloat(1.0),
	})

	require.NotEmpty(t, id)
	active := reg.ListActive("owner-1")
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].TradeID)
	assert.Equal(t, StateMonitoring, active[0].State)
}

func TestRegistry_CancelAllIsScopedToOwner(t *testing.T) {
	rec := notify.NewRecorder()
	reg := newTestRegistry(rec, oracle.NewStub())
	ctx := context.Background()

	reg.Open(ctx, Position{OwnerID: "alice", Mint: "m1", EntryPrice: decimal.NewFromInt(1)})
	reg.Open(ctx, Position{OwnerID: "alice", Mint: "m2", EntryPrice: decimal.NewFromInt(1)})
	reg.Open(ctx, Position{OwnerID: "bob", Mint: "m3", EntryPrice: decimal.NewFromInt(1)})

	n := reg.CancelAll("alice")
	assert.Equal(t, 2, n)
	assert.Empty(t, reg.ListActive("alice"))
	assert.Len(t, reg.ListActive("bob"), 1)

	// Cancellation is silent: no exit notifications.
	assert.Empty(t, rec.Exits())

	reg.CancelAll("bob")
}

func TestRegistry_CancelAllUnknownOwner(t *testing.T) {
	reg := newTestRegistry(notify.NewRecorder(), oracle.NewStub())
	assert.Equal(t, 0, reg.CancelAll("nobody"))
}

func TestRegistry_TerminalMonitorRemovesItself(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("MintAddr111", 5.0)

	reg := newTestRegistry(rec, prices)
	reg.Open(context.Background(), Position{
		OwnerID:       "owner-1",
		Mint:          "MintAddr111",
		EntryPrice:    decimal.NewFromFloat(1.0),
		TakeProfitPct: 50,
	})

	require.Eventually(t, func() bool { return reg.ActiveCount() == 0 },
		2*time.Second, 5*time.Millisecond)

	require.Len(t, rec.Exits(), 1)
	assert.Equal(t, notify.ExitTakeProfit, rec.Exits()[0].Reason)

	stats := reg.Stats()
	assert.Equal(t, int64(1), stats.Opened)
	assert.Equal(t, int64(1), stats.Closed)
	assert.Equal(t, 0, stats.Active)
}

func TestRegistry_IndependentMonitorsPerOwner(t *testing.T) {
	rec := notify.NewRecorder()
	prices := oracle.NewStub()
	prices.QueuePrices("winner", 2.0) // +100%: trips the TP monitor
	prices.QueuePrices("steady", 1.0) // flat: stays open

	reg := newTestRegistry(rec, prices)
	ctx := context.Background()

	reg.Open(ctx, Position{
		OwnerID: "owner-1", Mint: "winner",
		EntryPrice: decimal.NewFromFloat(1.0), TakeProfitPct: 50,
	})
	survivor := reg.Open(ctx, Position{
		OwnerID: "owner-1", Mint: "steady",
		EntryPrice: decimal.NewFromFloat(1.0), TakeProfitPct: 500,
	})

	require.Eventually(t, func() bool { return len(rec.Exits()) == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "winner", string(rec.Exits()[0].Mint))

	active := reg.ListActive("owner-1")
	require.Len(t, active, 1)
	assert.Equal(t, survivor, active[0].TradeID)

	reg.CancelAll("owner-1")
}

func TestRegistry_ConcurrentOpens(t *testing.T) {
	rec := notify.NewRecorder()
	reg := newTestRegistry(rec, oracle.NewStub())
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids <- reg.Open(ctx, Position{
				OwnerID:    "owner-1",
				Mint:       "m",
				EntryPrice: decimal.NewFromInt(1),
			})
		}(i)
	}
	wg.Wait()
	close(ids)

	unique := make(map[string]bool)
	for id := range ids {
		unique[id] = true
	}
	assert.Len(t, unique, n, "trade IDs must be unique")
	assert.Equal(t, n, reg.ActiveCount())

	assert.Equal(t, n, reg.CancelAll("owner-1"))
	assert.Equal(t, 0, reg.ActiveCount())
}

func TestRegistry_StressOpenCancelLoop(t *testing.T) {
	rec := notify.NewRecorder()
	reg := newTestRegistry(rec, oracle.NewStub())
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		owner := fmt.Sprintf("owner-%d", round%3)
		for i := 0; i < 5; i++ {
			reg.Open(ctx, Position{OwnerID: owner, Mint: "m", EntryPrice: decimal.NewFromInt(1)})
		}
		reg.CancelAll(owner)
	}
	assert.Equal(t, 0, reg.ActiveCount())
	assert.Empty(t, rec.Exits())
}
