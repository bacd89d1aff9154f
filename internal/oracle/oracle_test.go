package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStub_ScriptOrderAndRepeat(t *testing.T) {
	s := NewStub()
	s.QueuePrices("mint", 1.0, 2.0)

	ctx := context.Background()
	p1, err := s.Price(ctx, "mint")
	require.NoError(t, err)
	assert.True(t, p1.Equal(decimal.NewFromFloat(1.0)))

	p2, _ := s.Price(ctx, "mint")
	assert.True(t, p2.Equal(decimal.NewFromFloat(2.0)))

	// Exhausted scripts repeat the last step.
	p3, _ := s.Price(ctx, "mint")
	assert.True(t, p3.Equal(decimal.NewFromFloat(2.0)))

	assert.Equal(t, 3, s.Calls("mint"))
}

func TestStub_UnknownMintUnavailable(t *testing.T) {
	s := NewStub()
	_, err := s.Price(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCache_ServesFromCacheWithinTTL(t *testing.T) {
	inner := NewStub()
	inner.QueuePrices("mint", 1.5)
	c := NewCache(inner, time.Minute, time.Hour)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p, err := c.Price(ctx, "mint")
		require.NoError(t, err)
		assert.True(t, p.Equal(decimal.NewFromFloat(1.5)))
	}
	assert.Equal(t, 1, inner.Calls("mint"), "only the first call reaches the inner oracle")
}

func TestCache_RefreshesAfterTTL(t *testing.T) {
	inner := NewStub()
	inner.QueuePrices("mint", 1.0, 2.0)
	c := NewCache(inner, 10*time.Millisecond, time.Hour)

	ctx := context.Background()
	p, _ := c.Price(ctx, "mint")
	assert.True(t, p.Equal(decimal.NewFromFloat(1.0)))

	time.Sleep(20 * time.Millisecond)
	p, _ = c.Price(ctx, "mint")
	assert.True(t, p.Equal(decimal.NewFromFloat(2.0)))
}

func TestCache_LastGoodFallbackOnFailure(t *testing.T) {
	inner := NewStub()
	inner.QueuePrices("mint", 1.0)
	inner.QueueError("mint", errors.New("feed down"))
	c := NewCache(inner, 10*time.Millisecond, time.Hour)

	ctx := context.Background()
	p, err := c.Price(ctx, "mint")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromFloat(1.0)))

	// TTL elapses, the refresh fails, the last good price is served.
	time.Sleep(20 * time.Millisecond)
	p, err = c.Price(ctx, "mint")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromFloat(1.0)))
}

func TestCache_ErrorWithoutLastGood(t *testing.T) {
	inner := NewStub() // nothing scripted: always unavailable
	c := NewCache(inner, time.Minute, time.Hour)

	_, err := c.Price(context.Background(), "mint")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCache_ForgetDropsEntry(t *testing.T) {
	inner := NewStub()
	inner.QueuePrices("mint", 1.0, 2.0)
	c := NewCache(inner, time.Minute, time.Hour)

	ctx := context.Background()
	p, _ := c.Price(ctx, "mint")
	assert.True(t, p.Equal(decimal.NewFromFloat(1.0)))

	c.Forget("mint")
	p, _ = c.Price(ctx, "mint")
	assert.True(t, p.Equal(decimal.NewFromFloat(2.0)))
	assert.Equal(t, 2, inner.Calls("mint"))
}

func TestStream_FallsBackWhenCold(t *testing.T) {
	inner := NewStub()
	inner.QueuePrices("mint", 3.3)
	s := NewStream(DefaultStreamConfig(), inner)

	p, err := s.Price(context.Background(), "mint")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromFloat(3.3)))
}

func TestStream_UsesStreamedPriceWhenFresh(t *testing.T) {
	s := NewStream(DefaultStreamConfig(), nil)
	s.Track("mint")
	s.handleMessage([]byte(`{"mint":"mint","price_usd":0.42}`))

	p, err := s.Price(context.Background(), "mint")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromFloat(0.42)))
	assert.Equal(t, int64(1), s.Stats().PriceUpdates)
}

func TestStream_IgnoresUntrackedMints(t *testing.T) {
	s := NewStream(DefaultStreamConfig(), nil)
	s.handleMessage([]byte(`{"mint":"mint","price_usd":0.42}`))

	_, err := s.Price(context.Background(), "mint")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestStream_DerivesPriceFromCurveReserves(t *testing.T) {
	s := NewStream(DefaultStreamConfig(), nil)
	s.Track("mint")
	// 30 SOL / 1000000 tokens * 150 USD/SOL = 0.0045 USD
	s.handleMessage([]byte(`{"mint":"mint","vSolInBondingCurve":30,"vTokensInBondingCurve":1000000,"solPriceUsd":150}`))

	p, err := s.Price(context.Background(), "mint")
	require.NoError(t, err)
	f, _ := p.Float64()
	assert.InDelta(t, 0.0045, f, 1e-9)
}

func TestStream_UntrackDropsState(t *testing.T) {
	s := NewStream(DefaultStreamConfig(), nil)
	s.Track("mint")
	s.handleMessage([]byte(`{"mint":"mint","price_usd":1}`))
	s.Untrack("mint")

	_, err := s.Price(context.Background(), "mint")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, s.Stats().Tracked)
}
