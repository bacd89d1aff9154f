package pipeline

import (
	"github.com/mork-fetch/fetchd/internal/token"
)

// ---------------------------------------------------------------------------
// Risk Scorer — weighted 0-100 risk composite, lower is safer
// ---------------------------------------------------------------------------

// Weights defines the contribution of each risk dimension.
type Weights struct {
	Age       float64 `yaml:"age"`
	Holders   float64 `yaml:"holders"`
	Liquidity float64 `yaml:"liquidity"`
	MarketCap float64 `yaml:"mcap"`
}

// ScoreConfig configures the risk scorer. Ceilings are the reference points
// for linear sub-score normalization.
type ScoreConfig struct {
	Weights Weights `yaml:"weights"`

	AgeCeilingMinutes   int     `yaml:"age_ceiling_minutes"`
	HoldersCeiling      int     `yaml:"holders_ceiling"`
	LiquidityCeilingUSD float64 `yaml:"liquidity_ceiling_usd"`
	MarketCapCeilingUSD float64 `yaml:"mcap_ceiling_usd"`

	// RenounceBonus is subtracted from the composite when either authority
	// flag is renounced.
	RenounceBonus float64 `yaml:"renounce_bonus"`

	// MaxScore is the drop threshold applied after scoring. Scoring itself
	// never discards a token; the threshold check is a separate stage.
	MaxScore float64 `yaml:"max_score"`
}

// DefaultScoreConfig returns the stock risk profile.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		Weights: Weights{
			Age:       0.2,
			Holders:   0.2,
			Liquidity: 0.25,
			MarketCap: 0.25,
		},
		AgeCeilingMinutes:   180,
		HoldersCeiling:      1000,
		LiquidityCeilingUSD: 50000,
		MarketCapCeilingUSD: 500000,
		RenounceBonus:       10,
		MaxScore:            70,
	}
}

// Scorer computes weighted risk scores.
type Scorer struct {
	config ScoreConfig
}

// NewScorer creates a risk scorer.
func NewScorer(config ScoreConfig) *Scorer {
	return &Scorer{config: config}
}

// Score computes the 0-100 risk composite for one token. Dimensions with
// unknown input contribute zero (neutral, not penalized).
func (s *Scorer) Score(t token.Token) float64 {
	cfg := s.config
	score := 0.0

	// Age: older than the ceiling is maximally risky for a fresh-launch scan.
	if t.AgeMinutes != nil && cfg.AgeCeilingMinutes > 0 {
		sub := float64(*t.AgeMinutes) / float64(cfg.AgeCeilingMinutes) * 100
		score += clamp(sub) * cfg.Weights.Age
	}

	// Holders: fewer holders below the ceiling means more risk.
	if t.HolderCount != nil && cfg.HoldersCeiling > 0 {
		sub := (float64(cfg.HoldersCeiling) - float64(*t.HolderCount)) / float64(cfg.HoldersCeiling) * 100
		score += clamp(sub) * cfg.Weights.Holders
	}

	// Liquidity: thin pools are risky.
	if t.LiquidityUSD.Valid && cfg.LiquidityCeilingUSD > 0 {
		liq, _ := t.LiquidityUSD.Decimal.Float64()
		sub := (cfg.LiquidityCeilingUSD - liq) / cfg.LiquidityCeilingUSD * 100
		score += clamp(sub) * cfg.Weights.Liquidity
	}

	// Market cap: micro caps are risky.
	if t.MarketCapUSD.Valid && cfg.MarketCapCeilingUSD > 0 {
		mc, _ := t.MarketCapUSD.Decimal.Float64()
		sub := (cfg.MarketCapCeilingUSD - mc) / cfg.MarketCapCeilingUSD * 100
		score += clamp(sub) * cfg.Weights.MarketCap
	}

	if t.MintRenounced || t.FreezeRenounced {
		score -= cfg.RenounceBonus
	}

	return clamp(score)
}

// ScoreAll returns a new collection with risk scores set; the input tokens
// are not mutated.
func (s *Scorer) ScoreAll(tokens []token.Token) []token.Token {
	out := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Scored(s.Score(t)))
	}
	return out
}

// WithinThreshold reports whether a scored token survives the max-score cut.
func (s *Scorer) WithinThreshold(t token.Token) bool {
	if s.config.MaxScore <= 0 || t.RiskScore == nil {
		return true
	}
	return *t.RiskScore <= s.config.MaxScore
}

func clamp(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}
