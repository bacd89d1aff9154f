package pipeline

import (
	"math/rand"
	"testing"

	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRanker(maxResults int) *Ranker {
	return NewRanker(NewDeduper(testPriority, 0), maxResults)
}

func TestRank_OrderBySourceRiskLiquidity(t *testing.T) {
	r := newTestRanker(0)

	in := []token.Token{
		{Mint: "d", Source: "dexscreener", LiquidityUSD: token.USD(90000)},
		{Mint: "b", Source: "pumpfun", LiquidityUSD: token.USD(5000)},
		{Mint: "a", Source: "pumpfun", LiquidityUSD: token.USD(30000)},
		{Mint: "c", Source: "pumpfun", LiquidityUSD: token.USD(30000)},
	}
	in[1] = in[1].Scored(10) // b: best risk among pumpfun
	in[2] = in[2].Scored(40) // a
	in[3] = in[3].Scored(40) // c: tied with a, same liquidity

	out := r.Rank(in)
	require.Len(t, out, 4)

	// pumpfun before dexscreener; within pumpfun by risk asc; full tie broken
	// deterministically by mint.
	assert.Equal(t, token.Mint("b"), out[0].Mint)
	assert.Equal(t, token.Mint("a"), out[1].Mint)
	assert.Equal(t, token.Mint("c"), out[2].Mint)
	assert.Equal(t, token.Mint("d"), out[3].Mint)
}

func TestRank_LiquidityBreaksRiskTies(t *testing.T) {
	r := newTestRanker(0)

	thin := token.Token{Mint: "thin", Source: "pumpfun", LiquidityUSD: token.USD(1000)}.Scored(30)
	deep := token.Token{Mint: "deep", Source: "pumpfun", LiquidityUSD: token.USD(80000)}.Scored(30)
	unknown := token.Token{Mint: "unknown", Source: "pumpfun"}.Scored(30)

	out := r.Rank([]token.Token{thin, unknown, deep})
	require.Len(t, out, 3)
	assert.Equal(t, token.Mint("deep"), out[0].Mint)
	assert.Equal(t, token.Mint("thin"), out[1].Mint)
	assert.Equal(t, token.Mint("unknown"), out[2].Mint, "unknown liquidity ranks below any reported value")
}

func TestRank_UnscoredAfterScored(t *testing.T) {
	r := newTestRanker(0)

	out := r.Rank([]token.Token{
		{Mint: "u", Source: "pumpfun"},
		token.Token{Mint: "s", Source: "pumpfun"}.Scored(99),
	})
	require.Len(t, out, 2)
	assert.Equal(t, token.Mint("s"), out[0].Mint)
}

func TestRank_InputOrderIndependent(t *testing.T) {
	r := newTestRanker(0)

	base := []token.Token{
		token.Token{Mint: "a", Source: "pumpfun"}.Scored(10),
		token.Token{Mint: "b", Source: "pumpfun"}.Scored(10),
		token.Token{Mint: "c", Source: "dexscreener"}.Scored(5),
		token.Token{Mint: "d", Source: "solscan", LiquidityUSD: token.USD(100)}.Scored(5),
		{Mint: "e", Source: "pumpfun"},
	}

	want := r.Rank(base)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]token.Token, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, r.Rank(shuffled))
	}
}

func TestRank_Truncates(t *testing.T) {
	r := newTestRanker(2)

	out := r.Rank([]token.Token{
		token.Token{Mint: "a", Source: "pumpfun"}.Scored(1),
		token.Token{Mint: "b", Source: "pumpfun"}.Scored(2),
		token.Token{Mint: "c", Source: "pumpfun"}.Scored(3),
	})
	require.Len(t, out, 2)
	assert.Equal(t, token.Mint("a"), out[0].Mint)
	assert.Equal(t, token.Mint("b"), out[1].Mint)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	r := newTestRanker(0)
	in := []token.Token{
		token.Token{Mint: "z", Source: "solscan"}.Scored(50),
		token.Token{Mint: "a", Source: "pumpfun"}.Scored(1),
	}

	_ = r.Rank(in)
	assert.Equal(t, token.Mint("z"), in[0].Mint)
	assert.Equal(t, token.Mint("a"), in[1].Mint)
}
