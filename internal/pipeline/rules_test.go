package pipeline

import (
	"testing"

	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/stretchr/testify/assert"
)

func TestRules_PermissiveOnUnknown(t *testing.T) {
	// A token where every rule-relevant field is unknown must pass: absence
	// of data is not failure.
	ok, reason := DefaultRules().Passes(token.Token{Mint: "m", Source: "pumpfun"})
	assert.True(t, ok, "unexpected rejection: %s", reason)
}

func TestRules_MaxAge(t *testing.T) {
	rules := Rules{MaxAgeMinutes: 180}

	ok, _ := rules.Passes(token.Token{AgeMinutes: token.IntPtr(180)})
	assert.True(t, ok)

	ok, reason := rules.Passes(token.Token{AgeMinutes: token.IntPtr(181)})
	assert.False(t, ok)
	assert.Equal(t, "max_age", reason)
}

func TestRules_HolderBounds(t *testing.T) {
	rules := Rules{HoldersMin: 75, HoldersMax: 5000}

	ok, reason := rules.Passes(token.Token{HolderCount: token.IntPtr(74)})
	assert.False(t, ok)
	assert.Equal(t, "holders_min", reason)

	ok, reason = rules.Passes(token.Token{HolderCount: token.IntPtr(5001)})
	assert.False(t, ok)
	assert.Equal(t, "holders_max", reason)

	ok, _ = rules.Passes(token.Token{HolderCount: token.IntPtr(75)})
	assert.True(t, ok)
}

func TestRules_MarketCapBounds(t *testing.T) {
	rules := Rules{MarketCapMinUSD: 50000, MarketCapMaxUSD: 2000000}

	ok, reason := rules.Passes(token.Token{MarketCapUSD: token.USD(49999)})
	assert.False(t, ok)
	assert.Equal(t, "mcap_min", reason)

	ok, reason = rules.Passes(token.Token{MarketCapUSD: token.USD(2000001)})
	assert.False(t, ok)
	assert.Equal(t, "mcap_max", reason)

	// A reported zero is a real value and fails the floor; unknown passes.
	ok, reason = rules.Passes(token.Token{MarketCapUSD: token.USD(0)})
	assert.False(t, ok)
	assert.Equal(t, "mcap_min", reason)

	ok, _ = rules.Passes(token.Token{})
	assert.True(t, ok)
}

func TestRules_LiquidityFloor(t *testing.T) {
	rules := Rules{LiquidityMinUSD: 10000}

	ok, reason := rules.Passes(token.Token{LiquidityUSD: token.USD(9999)})
	assert.False(t, ok)
	assert.Equal(t, "liquidity_min", reason)

	ok, _ = rules.Passes(token.Token{LiquidityUSD: token.USD(10000)})
	assert.True(t, ok)
}

func TestRules_ExcludeKeywords(t *testing.T) {
	rules := Rules{ExcludeKeywords: []string{"rug", "scam"}}

	for _, tok := range []token.Token{
		{Name: "Mega RUG Coin"},
		{Symbol: "SCAM"},
		{Description: "definitely not a rugpull"},
	} {
		ok, reason := rules.Passes(tok)
		assert.False(t, ok)
		assert.Equal(t, "exclude_keyword", reason)
	}

	ok, _ := rules.Passes(token.Token{Name: "Honest Coin"})
	assert.True(t, ok)
}

func TestRules_ZeroValueDisablesRule(t *testing.T) {
	// An all-zero Rules rejects nothing.
	ok, _ := Rules{}.Passes(token.Token{
		AgeMinutes:   token.IntPtr(100000),
		HolderCount:  token.IntPtr(1),
		MarketCapUSD: token.USD(1),
		LiquidityUSD: token.USD(0),
		Name:         "rug scam",
	})
	assert.True(t, ok)
}
