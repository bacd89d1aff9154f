package pipeline

import (
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/mr-tron/base58"
)

// ---------------------------------------------------------------------------
// Normalizer — heterogeneous source records to the canonical Token shape
// ---------------------------------------------------------------------------

// Normalize converts a raw per-source record into a canonical Token.
// Returns nil when the record is unusable (missing or malformed identity).
// Unknown numeric fields stay unknown: zero is a meaningful value and is
// never substituted for missing data.
func Normalize(raw token.RawToken) *token.Token {
	if !ValidMint(raw.Mint) {
		return nil
	}

	return &token.Token{
		Mint:            token.Mint(raw.Mint),
		Symbol:          raw.Symbol,
		Name:            raw.Name,
		Description:     raw.Description,
		AgeMinutes:      raw.AgeMinutes,
		HolderCount:     raw.HolderCount,
		MarketCapUSD:    raw.MarketCapUSD,
		LiquidityUSD:    raw.LiquidityUSD,
		PriceUSD:        raw.PriceUSD,
		MintRenounced:   raw.MintRenounced,
		FreezeRenounced: raw.FreezeRenounced,
		Source:          raw.Source,
	}
}

// NormalizeAll maps a raw batch, dropping unusable records.
func NormalizeAll(raws []token.RawToken) []token.Token {
	out := make([]token.Token, 0, len(raws))
	for _, raw := range raws {
		if t := Normalize(raw); t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// ValidMint reports whether s is a well-formed mint address: base58 text
// decoding to exactly 32 bytes.
func ValidMint(s string) bool {
	if s == "" {
		return false
	}
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}
