package pumpfun

import (
	"context"
	"fmt"
	"time"

	"github.com/mork-fetch/fetchd/internal/source"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Pump.fun Adapter — newest launches from the frontend API
// https://frontend-api.pump.fun/coins?sort=created_timestamp&order=DESC
// ---------------------------------------------------------------------------

const Name = "pumpfun"

// Config configures the pump.fun adapter.
type Config struct {
	BaseURL      string  `yaml:"base_url"`
	TimeoutMs    int     `yaml:"timeout_ms"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://frontend-api.pump.fun",
		TimeoutMs:    10000,
		RateLimitRPS: 2,
	}
}

// Adapter fetches recently created pump.fun coins.
type Adapter struct {
	config Config
	client *source.Client
}

// New creates a pump.fun adapter.
func New(config Config) *Adapter {
	return &Adapter{
		config: config,
		client: source.NewClient(Name, time.Duration(config.TimeoutMs)*time.Millisecond, config.RateLimitRPS),
	}
}

func (a *Adapter) Name() string { return Name }

// coin is the wire shape of a pump.fun coin record. Numeric fields are
// pointers so an absent value and a reported zero decode differently.
type coin struct {
	Mint             string   `json:"mint"`
	Symbol           string   `json:"symbol"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	USDMarketCap     *float64 `json:"usd_market_cap"`
	CreatedTimestamp int64    `json:"created_timestamp"` // epoch millis
	Complete         bool     `json:"complete"`          // bonded to Raydium
}

// Fetch returns the newest coins, capped at limit.
func (a *Adapter) Fetch(ctx context.Context, limit int) ([]token.RawToken, error) {
	url := fmt.Sprintf("%s/coins?sort=created_timestamp&order=DESC&limit=%d", a.config.BaseURL, limit)

	var coins []coin
	if err := a.client.GetJSON(ctx, url, nil, &coins); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]token.RawToken, 0, len(coins))
	for _, c := range coins {
		out = append(out, a.normalize(c, now))
	}
	return out, nil
}

// Lookup fetches a single coin by mint.
func (a *Adapter) Lookup(ctx context.Context, mint string) (*token.RawToken, error) {
	url := fmt.Sprintf("%s/coins/%s", a.config.BaseURL, mint)

	var c coin
	if err := a.client.GetJSON(ctx, url, nil, &c); err != nil {
		return nil, err
	}
	if c.Mint == "" {
		return nil, nil
	}
	raw := a.normalize(c, time.Now())
	return &raw, nil
}

func (a *Adapter) normalize(c coin, now time.Time) token.RawToken {
	raw := token.RawToken{
		Mint:        c.Mint,
		Symbol:      c.Symbol,
		Name:        c.Name,
		Description: c.Description,
		Source:      Name,
		// Bonded pump.fun tokens have both authorities stripped by the
		// bonding curve program.
		MintRenounced:   c.Complete,
		FreezeRenounced: c.Complete,
	}
	if c.USDMarketCap != nil {
		raw.MarketCapUSD = decimal.NullDecimal{Decimal: decimal.NewFromFloat(*c.USDMarketCap), Valid: true}
	}
	if c.CreatedTimestamp > 0 {
		created := time.UnixMilli(c.CreatedTimestamp)
		raw.AgeMinutes = token.AgeFromCreation(created, now)
	}
	return raw
}
