package pipeline

import (
	"strings"

	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Rule Filter — configurable inclusion/exclusion thresholds
// ---------------------------------------------------------------------------

// Rules holds the configurable hard filters. A zero value disables the
// corresponding rule. Tokens with an unknown field are never rejected by a
// rule over that field: absence of data is not failure, otherwise
// under-reporting sources would starve the pipeline.
type Rules struct {
	MaxAgeMinutes   int      `yaml:"max_age_minutes"`
	HoldersMin      int      `yaml:"holders_min"`
	HoldersMax      int      `yaml:"holders_max"`
	MarketCapMinUSD float64  `yaml:"mcap_min_usd"`
	MarketCapMaxUSD float64  `yaml:"mcap_max_usd"`
	LiquidityMinUSD float64  `yaml:"liquidity_min_usd"`
	ExcludeKeywords []string `yaml:"exclude_keywords"`
}

// DefaultRules returns the stock scan profile.
func DefaultRules() Rules {
	return Rules{
		MaxAgeMinutes:   180,
		HoldersMin:      75,
		HoldersMax:      5000,
		MarketCapMinUSD: 50000,
		MarketCapMaxUSD: 2000000,
		LiquidityMinUSD: 10000,
		ExcludeKeywords: []string{"rug", "scam"},
	}
}

// Passes evaluates all configured rules against a token. The second return
// names the first failed rule, used for per-cycle failure breakdowns.
func (r Rules) Passes(t token.Token) (bool, string) {
	if r.MaxAgeMinutes > 0 && t.AgeMinutes != nil && *t.AgeMinutes > r.MaxAgeMinutes {
		return false, "max_age"
	}

	if t.HolderCount != nil {
		if r.HoldersMin > 0 && *t.HolderCount < r.HoldersMin {
			return false, "holders_min"
		}
		if r.HoldersMax > 0 && *t.HolderCount > r.HoldersMax {
			return false, "holders_max"
		}
	}

	if t.MarketCapUSD.Valid {
		mc := t.MarketCapUSD.Decimal
		if r.MarketCapMinUSD > 0 && mc.LessThan(decimal.NewFromFloat(r.MarketCapMinUSD)) {
			return false, "mcap_min"
		}
		if r.MarketCapMaxUSD > 0 && mc.GreaterThan(decimal.NewFromFloat(r.MarketCapMaxUSD)) {
			return false, "mcap_max"
		}
	}

	if r.LiquidityMinUSD > 0 && t.LiquidityUSD.Valid &&
		t.LiquidityUSD.Decimal.LessThan(decimal.NewFromFloat(r.LiquidityMinUSD)) {
		return false, "liquidity_min"
	}

	if len(r.ExcludeKeywords) > 0 {
		haystack := strings.ToLower(t.Name + " " + t.Symbol + " " + t.Description)
		for _, kw := range r.ExcludeKeywords {
			if kw == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(kw)) {
				return false, "exclude_keyword"
			}
		}
	}

	return true, ""
}
