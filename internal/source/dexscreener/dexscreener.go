package dexscreener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mork-fetch/fetchd/internal/source"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// DexScreener Adapter — fresh Solana pairs via the search API
// https://api.dexscreener.com/latest/dex/search?q=sol
// ---------------------------------------------------------------------------

const Name = "dexscreener"

// Config configures the DexScreener adapter.
type Config struct {
	BaseURL         string  `yaml:"base_url"`
	TimeoutMs       int     `yaml:"timeout_ms"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	RecentWindowMin int     `yaml:"recent_window_min"` // only pairs created inside this window
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://api.dexscreener.com",
		TimeoutMs:       12000,
		RateLimitRPS:    1,
		RecentWindowMin: 180,
	}
}

// Adapter fetches recently created Solana pairs.
type Adapter struct {
	config Config
	client *source.Client
}

// New creates a DexScreener adapter.
func New(config Config) *Adapter {
	return &Adapter{
		config: config,
		client: source.NewClient(Name, time.Duration(config.TimeoutMs)*time.Millisecond, config.RateLimitRPS),
	}
}

func (a *Adapter) Name() string { return Name }

// pair is the wire shape of a DexScreener pair. FDV and liquidity are
// pointers so an absent value and a reported zero decode differently.
type pair struct {
	ChainID       string   `json:"chainId"`
	PairAddress   string   `json:"pairAddress"`
	PairCreatedAt int64    `json:"pairCreatedAt"` // epoch millis
	PriceUSD      string   `json:"priceUsd"`
	FDV           *float64 `json:"fdv"`
	BaseToken     struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
		Name    string `json:"name"`
	} `json:"baseToken"`
	Liquidity struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
}

type searchResponse struct {
	Pairs []pair `json:"pairs"`
}

// Fetch returns base tokens of Solana pairs created inside the recent window.
func (a *Adapter) Fetch(ctx context.Context, limit int) ([]token.RawToken, error) {
	url := fmt.Sprintf("%s/latest/dex/search?q=sol", a.config.BaseURL)

	var resp searchResponse
	if err := a.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	window := time.Duration(a.config.RecentWindowMin) * time.Minute

	out := make([]token.RawToken, 0, limit)
	for _, p := range resp.Pairs {
		if !strings.EqualFold(p.ChainID, "solana") || p.PairCreatedAt == 0 {
			continue
		}
		created := time.UnixMilli(p.PairCreatedAt)
		if now.Sub(created) > window {
			continue
		}
		out = append(out, a.normalize(p, now))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Lookup fetches the freshest pair for a mint.
func (a *Adapter) Lookup(ctx context.Context, mint string) (*token.RawToken, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", a.config.BaseURL, mint)

	var resp searchResponse
	if err := a.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Pairs) == 0 {
		return nil, nil
	}
	raw := a.normalize(resp.Pairs[0], time.Now())
	return &raw, nil
}

func (a *Adapter) normalize(p pair, now time.Time) token.RawToken {
	raw := token.RawToken{
		Mint:   p.BaseToken.Address,
		Symbol: p.BaseToken.Symbol,
		Name:   p.BaseToken.Name,
		Source: Name,
	}
	if p.PairCreatedAt > 0 {
		raw.AgeMinutes = token.AgeFromCreation(time.UnixMilli(p.PairCreatedAt), now)
	}
	if p.Liquidity.USD != nil {
		raw.LiquidityUSD = decimal.NullDecimal{Decimal: decimal.NewFromFloat(*p.Liquidity.USD), Valid: true}
	}
	if p.FDV != nil {
		raw.MarketCapUSD = decimal.NullDecimal{Decimal: decimal.NewFromFloat(*p.FDV), Valid: true}
	}
	if price, err := decimal.NewFromString(p.PriceUSD); err == nil && price.IsPositive() {
		raw.PriceUSD = decimal.NullDecimal{Decimal: price, Valid: true}
	}
	return raw
}
