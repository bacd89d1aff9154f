package token

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Canonical token model — every source adapter converges on these shapes
// ---------------------------------------------------------------------------

// Mint is a token mint address (base58, 32 bytes decoded).
type Mint string

// RawToken is a per-source candidate record before normalization.
// Numeric fields are optional: nil / invalid means the source did not report
// the value, which is distinct from a reported zero.
type RawToken struct {
	Mint        string `json:"mint"`
	Symbol      string `json:"symbol,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	AgeMinutes  *int `json:"age_minutes,omitempty"`
	HolderCount *int `json:"holder_count,omitempty"`

	MarketCapUSD decimal.NullDecimal `json:"market_cap_usd,omitempty"`
	LiquidityUSD decimal.NullDecimal `json:"liquidity_usd,omitempty"`
	PriceUSD     decimal.NullDecimal `json:"price_usd,omitempty"`

	MintRenounced   bool `json:"mint_renounced"`
	FreezeRenounced bool `json:"freeze_renounced"`

	// Source is the adapter tag that produced this record.
	Source string `json:"source"`
}

// Token is the canonical normalized record. Once a token leaves the
// deduplication stage it is treated as immutable: pipeline stages build new
// collections instead of mutating in place.
type Token struct {
	Mint        Mint   `json:"mint"`
	Symbol      string `json:"symbol,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	AgeMinutes  *int `json:"age_minutes,omitempty"`
	HolderCount *int `json:"holder_count,omitempty"`

	MarketCapUSD decimal.NullDecimal `json:"market_cap_usd,omitempty"`
	LiquidityUSD decimal.NullDecimal `json:"liquidity_usd,omitempty"`
	PriceUSD     decimal.NullDecimal `json:"price_usd,omitempty"`

	MintRenounced   bool `json:"mint_renounced"`
	FreezeRenounced bool `json:"freeze_renounced"`

	Source string `json:"source"`

	// RiskScore is set by the scorer (0-100, lower is safer). Nil before
	// the scoring stage has run.
	RiskScore *float64 `json:"risk_score,omitempty"`
}

// Scored returns a copy of the token with its risk score set.
func (t Token) Scored(score float64) Token {
	t.RiskScore = &score
	return t
}

// Liquidity returns the reported liquidity, or ok=false when unknown.
func (t Token) Liquidity() (decimal.Decimal, bool) {
	return t.LiquidityUSD.Decimal, t.LiquidityUSD.Valid
}

// IntPtr is a convenience for building optional integer fields.
func IntPtr(v int) *int { return &v }

// USD wraps a float into a valid NullDecimal.
func USD(v float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}
}

// AgeFromCreation derives whole minutes since a creation timestamp, or nil
// when the timestamp is missing (zero).
func AgeFromCreation(createdAt time.Time, now time.Time) *int {
	if createdAt.IsZero() {
		return nil
	}
	mins := int(now.Sub(createdAt) / time.Minute)
	if mins < 0 {
		mins = 0
	}
	return &mins
}
