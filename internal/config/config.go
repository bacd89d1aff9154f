package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mork-fetch/fetchd/internal/monitor"
	"github.com/mork-fetch/fetchd/internal/oracle"
	"github.com/mork-fetch/fetchd/internal/pipeline"
	"github.com/mork-fetch/fetchd/internal/source/dexscreener"
	"github.com/mork-fetch/fetchd/internal/source/pumpfun"
	"github.com/mork-fetch/fetchd/internal/source/solscan"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for fetchd.
type Config struct {
	General GeneralConfig        `yaml:"general"`
	Sources SourcesConfig        `yaml:"sources"`
	Rules   pipeline.Rules       `yaml:"rules"`
	Risk    pipeline.ScoreConfig `yaml:"risk"`
	Fetch   FetchConfig          `yaml:"fetch"`
	Monitor monitor.Config       `yaml:"monitor"`
	Oracle  OracleConfig         `yaml:"oracle"`
	Metrics MetricsConfig        `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|text
}

type SourcesConfig struct {
	// Enabled names the primary sources queried every cycle.
	Enabled []string `yaml:"enabled"`
	// Fallback names sources consulted, in order, only when every primary
	// comes up empty.
	Fallback []string `yaml:"fallback"`
	// Priority ranks source tags for dedup conflict resolution
	// (lower = preferred; unknown tags rank last).
	Priority map[string]int `yaml:"priority"`
	// Watchlist mints are force-fetched every cycle.
	Watchlist []string `yaml:"watchlist"`

	Pumpfun     pumpfun.Config     `yaml:"pumpfun"`
	Dexscreener dexscreener.Config `yaml:"dexscreener"`
	Solscan     solscan.Config     `yaml:"solscan"`
}

type FetchConfig struct {
	IntervalS    int                  `yaml:"interval_s"`     // discovery cycle interval
	Limit        int                  `yaml:"limit"`          // per-source fetch size
	TimeoutS     int                  `yaml:"timeout_s"`      // per-source call timeout
	MaxResults   int                  `yaml:"max_results"`    // candidates announced per cycle
	SeenCapacity int                  `yaml:"seen_capacity"`  // cross-cycle dedup memory size
	Retry        pipeline.RetryConfig `yaml:"retry"`
}

type OracleConfig struct {
	Jupiter       oracle.JupiterConfig `yaml:"jupiter"`
	Stream        oracle.StreamConfig  `yaml:"stream"`
	StreamEnabled bool                 `yaml:"stream_enabled"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a fully defaulted configuration, used when no config file
// is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "fetchd-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}

	if len(cfg.Sources.Enabled) == 0 {
		cfg.Sources.Enabled = []string{pumpfun.Name, dexscreener.Name}
	}
	if len(cfg.Sources.Fallback) == 0 {
		cfg.Sources.Fallback = []string{solscan.Name}
	}
	if len(cfg.Sources.Priority) == 0 {
		cfg.Sources.Priority = map[string]int{
			pumpfun.Name:     0,
			dexscreener.Name: 1,
			solscan.Name:     2,
		}
	}
	if cfg.Sources.Pumpfun.BaseURL == "" {
		cfg.Sources.Pumpfun = pumpfun.DefaultConfig()
	}
	if cfg.Sources.Dexscreener.BaseURL == "" {
		cfg.Sources.Dexscreener = dexscreener.DefaultConfig()
	}
	if cfg.Sources.Solscan.BaseURL == "" {
		key := cfg.Sources.Solscan.APIKey
		cfg.Sources.Solscan = solscan.DefaultConfig()
		cfg.Sources.Solscan.APIKey = key
	}

	// Rules default only as a whole block. A partially configured block is
	// kept verbatim: an unset rule stays zero, and zero disables that rule.
	if rulesUnset(cfg.Rules) {
		cfg.Rules = pipeline.DefaultRules()
	}

	riskDefaults := pipeline.DefaultScoreConfig()
	w := cfg.Risk.Weights
	if w.Age == 0 && w.Holders == 0 && w.Liquidity == 0 && w.MarketCap == 0 {
		cfg.Risk.Weights = riskDefaults.Weights
	}
	if cfg.Risk.MaxScore <= 0 {
		cfg.Risk.MaxScore = riskDefaults.MaxScore
	}
	if cfg.Risk.RenounceBonus <= 0 {
		cfg.Risk.RenounceBonus = riskDefaults.RenounceBonus
	}
	if cfg.Risk.AgeCeilingMinutes <= 0 {
		cfg.Risk.AgeCeilingMinutes = riskDefaults.AgeCeilingMinutes
	}
	if cfg.Risk.HoldersCeiling <= 0 {
		cfg.Risk.HoldersCeiling = riskDefaults.HoldersCeiling
	}
	if cfg.Risk.LiquidityCeilingUSD <= 0 {
		cfg.Risk.LiquidityCeilingUSD = riskDefaults.LiquidityCeilingUSD
	}
	if cfg.Risk.MarketCapCeilingUSD <= 0 {
		cfg.Risk.MarketCapCeilingUSD = riskDefaults.MarketCapCeilingUSD
	}

	if cfg.Fetch.IntervalS <= 0 {
		cfg.Fetch.IntervalS = 60
	}
	if cfg.Fetch.Limit <= 0 {
		cfg.Fetch.Limit = 25
	}
	if cfg.Fetch.TimeoutS <= 0 {
		cfg.Fetch.TimeoutS = 12
	}
	if cfg.Fetch.MaxResults <= 0 {
		cfg.Fetch.MaxResults = 10
	}
	if cfg.Fetch.SeenCapacity <= 0 {
		cfg.Fetch.SeenCapacity = 8000
	}
	if cfg.Fetch.Retry.MaxAttempts <= 0 {
		cfg.Fetch.Retry = pipeline.DefaultRetryConfig()
	}

	monDefaults := monitor.DefaultConfig()
	if cfg.Monitor.PollIntervalMs <= 0 {
		cfg.Monitor.PollIntervalMs = monDefaults.PollIntervalMs
	}
	if cfg.Monitor.WindowS <= 0 {
		cfg.Monitor.WindowS = monDefaults.WindowS
	}
	if cfg.Monitor.MissCeiling <= 0 {
		cfg.Monitor.MissCeiling = monDefaults.MissCeiling
	}
	if cfg.Monitor.PriceTimeoutS <= 0 {
		cfg.Monitor.PriceTimeoutS = monDefaults.PriceTimeoutS
	}

	if cfg.Oracle.Jupiter.BaseURL == "" {
		cfg.Oracle.Jupiter = oracle.DefaultJupiterConfig()
	}
	if cfg.Oracle.Stream.Endpoint == "" {
		cfg.Oracle.Stream = oracle.DefaultStreamConfig()
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9109
	}
}

// rulesUnset reports whether the rules block was not configured at all.
func rulesUnset(r pipeline.Rules) bool {
	return r.MaxAgeMinutes == 0 && r.HoldersMin == 0 && r.HoldersMax == 0 &&
		r.MarketCapMinUSD == 0 && r.MarketCapMaxUSD == 0 &&
		r.LiquidityMinUSD == 0 && len(r.ExcludeKeywords) == 0
}

// Validate fails fast on configurations that would misbehave at runtime.
func (cfg *Config) Validate() error {
	if len(cfg.Sources.Enabled) == 0 {
		return fmt.Errorf("config: at least one source must be enabled")
	}
	known := map[string]bool{pumpfun.Name: true, dexscreener.Name: true, solscan.Name: true}
	for _, name := range append(append([]string{}, cfg.Sources.Enabled...), cfg.Sources.Fallback...) {
		if !known[name] {
			return fmt.Errorf("config: unknown source %q", name)
		}
	}

	w := cfg.Risk.Weights
	for name, v := range map[string]float64{
		"age": w.Age, "holders": w.Holders, "liquidity": w.Liquidity, "mcap": w.MarketCap,
	} {
		if v < 0 {
			return fmt.Errorf("config: risk weight %s must be >= 0", name)
		}
	}
	if w.Age+w.Holders+w.Liquidity+w.MarketCap <= 0 {
		return fmt.Errorf("config: risk weights must sum to > 0")
	}
	if cfg.Risk.MaxScore <= 0 {
		return fmt.Errorf("config: risk max_score must be > 0")
	}

	if cfg.Rules.HoldersMin < 0 || cfg.Rules.MarketCapMinUSD < 0 || cfg.Rules.LiquidityMinUSD < 0 {
		return fmt.Errorf("config: rule thresholds must be >= 0")
	}
	if cfg.Rules.HoldersMax > 0 && cfg.Rules.HoldersMax < cfg.Rules.HoldersMin {
		return fmt.Errorf("config: holders_max must be >= holders_min")
	}

	if cfg.Monitor.MissCeiling < 1 {
		return fmt.Errorf("config: monitor miss_ceiling must be >= 1")
	}
	return nil
}

// FetchInterval returns the discovery cycle interval as a duration.
func (cfg *Config) FetchInterval() time.Duration {
	return time.Duration(cfg.Fetch.IntervalS) * time.Second
}

// ListenAddr returns the HTTP listen address, or ok=false when the
// observability surface is disabled.
func (m MetricsConfig) ListenAddr() (string, bool) {
	if !m.Enabled || m.Port <= 0 {
		return "", false
	}
	return fmt.Sprintf(":%d", m.Port), true
}
