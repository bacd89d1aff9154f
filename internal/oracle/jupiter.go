package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/mork-fetch/fetchd/internal/source"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Jupiter price API — HTTP oracle backend
// ---------------------------------------------------------------------------

// JupiterConfig configures the Jupiter price client.
type JupiterConfig struct {
	BaseURL   string        `yaml:"base_url"`
	TimeoutS  int           `yaml:"timeout_s"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// DefaultJupiterConfig returns conservative public-API defaults.
func DefaultJupiterConfig() JupiterConfig {
	return JupiterConfig{
		BaseURL:   "https://price.jup.ag/v6",
		TimeoutS:  10,
		RateLimit: 2,
		CacheTTL:  5 * time.Second,
	}
}

// Jupiter fetches spot prices from the Jupiter price API.
type Jupiter struct {
	config JupiterConfig
	client *source.Client
}

// NewJupiter creates the HTTP oracle backend.
func NewJupiter(config JupiterConfig) *Jupiter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultJupiterConfig().BaseURL
	}
	if config.TimeoutS <= 0 {
		config.TimeoutS = 10
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 2
	}
	return &Jupiter{
		config: config,
		client: source.NewClient("jupiter", time.Duration(config.TimeoutS)*time.Second, config.RateLimit),
	}
}

type jupiterResponse struct {
	Data map[string]struct {
		ID    string  `json:"id"`
		Price float64 `json:"price"`
	} `json:"data"`
}

// Price implements Oracle.
func (j *Jupiter) Price(ctx context.Context, mint token.Mint) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/price?ids=%s", j.config.BaseURL, mint)

	var resp jupiterResponse
	if err := j.client.GetJSON(ctx, url, nil, &resp); err != nil {
		return decimal.Zero, err
	}

	entry, ok := resp.Data[string(mint)]
	if !ok || entry.Price <= 0 {
		return decimal.Zero, ErrUnavailable
	}
	return decimal.NewFromFloat(entry.Price), nil
}
