package solscan

import (
	"context"
	"fmt"
	"time"

	"github.com/mork-fetch/fetchd/internal/source"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Solscan Pro Adapter — newest tokens, requires an API key
// Dormant (always UNAVAILABLE) when no key is configured.
// ---------------------------------------------------------------------------

const Name = "solscan"

// Config configures the Solscan adapter.
type Config struct {
	BaseURL      string  `yaml:"base_url"`
	APIKey       string  `yaml:"api_key"`
	TimeoutMs    int     `yaml:"timeout_ms"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// DefaultConfig returns production defaults. The API key comes from the
// environment via config expansion.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://pro-api.solscan.io",
		TimeoutMs:    12000,
		RateLimitRPS: 1,
	}
}

// Adapter fetches the newest tokens from Solscan Pro.
type Adapter struct {
	config Config
	client *source.Client
}

// New creates a Solscan adapter.
func New(config Config) *Adapter {
	return &Adapter{
		config: config,
		client: source.NewClient(Name, time.Duration(config.TimeoutMs)*time.Millisecond, config.RateLimitRPS),
	}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) headers() map[string]string {
	// Solscan gateways accept either header style; send both.
	return map[string]string{
		"token":     a.config.APIKey,
		"X-API-KEY": a.config.APIKey,
	}
}

// item is the wire shape of a Solscan token record. Holder and market cap
// are pointers so an absent value and a reported zero decode differently.
type item struct {
	Address     string   `json:"address"`
	Mint        string   `json:"mint"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Holder      *int     `json:"holder"`
	MarketCap   *float64 `json:"market_cap"`
	CreatedTime int64    `json:"created_time"` // epoch seconds
}

type listResponse struct {
	Data []item `json:"data"`
}

// Fetch returns the newest tokens known to Solscan.
func (a *Adapter) Fetch(ctx context.Context, limit int) ([]token.RawToken, error) {
	if a.config.APIKey == "" {
		return nil, source.NewError(Name, source.KindUnavailable, fmt.Errorf("no api key configured"))
	}

	url := fmt.Sprintf("%s/v2.0/token/latest?limit=%d", a.config.BaseURL, limit)

	var resp listResponse
	if err := a.client.GetJSON(ctx, url, a.headers(), &resp); err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]token.RawToken, 0, len(resp.Data))
	for _, it := range resp.Data {
		out = append(out, a.normalize(it, now))
	}
	return out, nil
}

// Lookup fetches token metadata for a single mint.
func (a *Adapter) Lookup(ctx context.Context, mint string) (*token.RawToken, error) {
	if a.config.APIKey == "" {
		return nil, source.NewError(Name, source.KindUnavailable, fmt.Errorf("no api key configured"))
	}

	url := fmt.Sprintf("%s/v2.0/token/meta?address=%s", a.config.BaseURL, mint)

	var resp struct {
		Data item `json:"data"`
	}
	if err := a.client.GetJSON(ctx, url, a.headers(), &resp); err != nil {
		return nil, err
	}
	if resp.Data.Address == "" && resp.Data.Mint == "" {
		return nil, nil
	}
	raw := a.normalize(resp.Data, time.Now())
	return &raw, nil
}

func (a *Adapter) normalize(it item, now time.Time) token.RawToken {
	mint := it.Mint
	if mint == "" {
		mint = it.Address
	}
	raw := token.RawToken{
		Mint:   mint,
		Symbol: it.Symbol,
		Name:   it.Name,
		Source: Name,
	}
	if it.Holder != nil {
		raw.HolderCount = token.IntPtr(*it.Holder)
	}
	if it.MarketCap != nil {
		raw.MarketCapUSD = decimal.NullDecimal{Decimal: decimal.NewFromFloat(*it.MarketCap), Valid: true}
	}
	if it.CreatedTime > 0 {
		raw.AgeMinutes = token.AgeFromCreation(time.Unix(it.CreatedTime, 0), now)
	}
	return raw
}
