package pipeline

import (
	"sort"

	"github.com/mork-fetch/fetchd/internal/token"
)

// ---------------------------------------------------------------------------
// Ranker — deterministic ordering of dedup survivors
// ---------------------------------------------------------------------------

// Ranker orders candidates by (source priority asc, risk score asc,
// liquidity desc) and truncates to the configured result size. The sort is
// stable, so equal inputs always produce equal output.
type Ranker struct {
	deduper    *Deduper // source priority lookup
	maxResults int
}

// NewRanker creates a ranker. maxResults <= 0 means no truncation.
func NewRanker(deduper *Deduper, maxResults int) *Ranker {
	return &Ranker{deduper: deduper, maxResults: maxResults}
}

// Rank returns a new ordered slice; the input is not modified.
func (r *Ranker) Rank(tokens []token.Token) []token.Token {
	out := make([]token.Token, len(tokens))
	copy(out, tokens)

	// Secondary pre-sort by mint makes the order independent of input
	// arrival order even for fully tied records.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Mint < out[j].Mint
	})

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := r.deduper.PriorityOf(out[i].Source), r.deduper.PriorityOf(out[j].Source)
		if pi != pj {
			return pi < pj
		}
		ri, rj := riskOf(out[i]), riskOf(out[j])
		if ri != rj {
			return ri < rj
		}
		li, lj := liquidityOf(out[i]), liquidityOf(out[j])
		return li > lj
	})

	if r.maxResults > 0 && len(out) > r.maxResults {
		out = out[:r.maxResults]
	}
	return out
}

func riskOf(t token.Token) float64 {
	if t.RiskScore == nil {
		return 101 // unscored ranks after every scored token
	}
	return *t.RiskScore
}

func liquidityOf(t token.Token) float64 {
	if !t.LiquidityUSD.Valid {
		return -1 // unknown ranks below any reported liquidity
	}
	v, _ := t.LiquidityUSD.Decimal.Float64()
	return v
}
