package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mork-fetch/fetchd/internal/config"
	"github.com/mork-fetch/fetchd/internal/monitor"
	"github.com/mork-fetch/fetchd/internal/notify"
	"github.com/mork-fetch/fetchd/internal/observability"
	"github.com/mork-fetch/fetchd/internal/oracle"
	"github.com/mork-fetch/fetchd/internal/pipeline"
	"github.com/mork-fetch/fetchd/internal/source"
	"github.com/mork-fetch/fetchd/internal/source/dexscreener"
	"github.com/mork-fetch/fetchd/internal/source/pumpfun"
	"github.com/mork-fetch/fetchd/internal/source/solscan"
	"github.com/mork-fetch/fetchd/internal/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use synthetic sources and a scripted oracle (no network)")
	once := flag.Bool("once", false, "Run a single discovery cycle, print candidates as JSON, and exit")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("fetchd - Token Discovery & Position Monitor")
	log.Info().Msg("FETCH -> FILTER -> SCORE -> RANK -> WATCH")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("stub_mode", *stubMode).
		Strs("sources", cfg.Sources.Enabled).
		Strs("fallback", cfg.Sources.Fallback).
		Int("fetch_limit", cfg.Fetch.Limit).
		Int("max_results", cfg.Fetch.MaxResults).
		Float64("max_score", cfg.Risk.MaxScore).
		Msg("Configuration loaded")

	// 4. Build sources.
	primaries := buildAdapters(cfg, cfg.Sources.Enabled, *stubMode)
	fallbacks := buildAdapters(cfg, cfg.Sources.Fallback, *stubMode)

	// 5. Build the price oracle.
	var prices oracle.Oracle
	var stream *oracle.Stream
	if *stubMode {
		prices = oracle.NewStub()
		log.Info().Msg("Oracle: STUB mode")
	} else {
		jup := oracle.NewJupiter(cfg.Oracle.Jupiter)
		cached := oracle.NewCache(jup, cfg.Oracle.Jupiter.CacheTTL, 0)
		if cfg.Oracle.StreamEnabled {
			stream = oracle.NewStream(cfg.Oracle.Stream, cached)
			prices = stream
			log.Info().Str("endpoint", cfg.Oracle.Stream.Endpoint).Msg("Oracle: stream + HTTP fallback")
		} else {
			prices = cached
			log.Info().Str("base_url", cfg.Oracle.Jupiter.BaseURL).Msg("Oracle: HTTP")
		}
	}

	// 6. Wire the pipeline.
	metrics := observability.NewRegistry()
	sink := notify.LogSink{}

	deduper := pipeline.NewDeduper(cfg.Sources.Priority, cfg.Fetch.SeenCapacity)
	ranker := pipeline.NewRanker(deduper, cfg.Fetch.MaxResults)
	scorer := pipeline.NewScorer(cfg.Risk)

	orch := pipeline.NewOrchestrator(
		pipeline.OrchestratorConfig{
			FetchTimeout: time.Duration(cfg.Fetch.TimeoutS) * time.Second,
			Limit:        cfg.Fetch.Limit,
			Retry:        cfg.Fetch.Retry,
			Watchlist:    cfg.Sources.Watchlist,
		},
		primaries, fallbacks,
		cfg.Rules, scorer, deduper, ranker,
		sink, metrics,
	)

	// 7. Monitor registry.
	registry := monitor.NewRegistry(cfg.Monitor, prices, sink, metrics)

	// 8. One-shot mode: single cycle, JSON to stdout, done.
	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		set, runErr := orch.Run(ctx, cfg.Fetch.Limit)
		if runErr != nil {
			log.Fatal().Err(runErr).Msg("Cycle failed")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(set)
		return
	}

	// 9. Setup context and signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 10. Start services.
	var wg sync.WaitGroup

	if stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream.Start(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.Start(ctx, cfg.FetchInterval())
	}()

	// HTTP surface: metrics + health + stats + positions.
	if addr, ok := cfg.Metrics.ListenAddr(); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, cfg, addr, metrics, orch, registry, stream)
		}()
	}

	// Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ps := orch.Stats()
				rs := registry.Stats()
				log.Info().
					Int64("cycles", ps.Cycles).
					Int64("last_candidates", ps.LastCandidates).
					Int("dedup_seen", ps.DedupSeen).
					Int("monitors_active", rs.Active).
					Int64("monitors_opened", rs.Opened).
					Int64("monitors_closed", rs.Closed).
					Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("fetchd - Running")

	// 11. Block until shutdown.
	<-ctx.Done()
	wg.Wait()

	final := orch.Stats()
	log.Info().
		Int64("cycles", final.Cycles).
		Int64("monitors_opened", registry.Stats().Opened).
		Msg("fetchd - Shutdown complete")
}

// buildAdapters maps configured source names onto adapters. Stub mode
// substitutes synthetic in-memory sources.
func buildAdapters(cfg *config.Config, names []string, stub bool) []source.Adapter {
	var out []source.Adapter
	for _, name := range names {
		if stub {
			out = append(out, source.NewSynthetic(name, 10))
			continue
		}
		switch name {
		case pumpfun.Name:
			out = append(out, pumpfun.New(cfg.Sources.Pumpfun))
		case dexscreener.Name:
			out = append(out, dexscreener.New(cfg.Sources.Dexscreener))
		case solscan.Name:
			out = append(out, solscan.New(cfg.Sources.Solscan))
		}
	}
	return out
}

// openPositionRequest is the POST /positions/open body.
type openPositionRequest struct {
	OwnerID         string  `json:"owner_id"`
	Mint            string  `json:"mint"`
	EntryPrice      float64 `json:"entry_price"`
	Amount          float64 `json:"amount"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TrailingStopPct float64 `json:"trailing_stop_pct"`
}

func serveHTTP(
	ctx context.Context,
	cfg *config.Config,
	addr string,
	metrics *observability.Registry,
	orch *pipeline.Orchestrator,
	registry *monitor.Registry,
	stream *oracle.Stream,
) {
	obs := observability.NewServer(metrics, func() any {
		combined := map[string]any{
			"orchestrator": orch.Stats(),
			"monitors":     registry.Stats(),
			"instance_id":  cfg.General.InstanceID,
		}
		if stream != nil {
			combined["oracle_stream"] = stream.Stats()
		}
		return combined
	})

	mux := http.NewServeMux()
	mux.Handle("/", obs.Handler())

	// ── Positions ──
	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(registry.ListActive(owner))
	})

	mux.HandleFunc("/positions/open", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var req openPositionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.OwnerID == "" || req.Mint == "" || req.EntryPrice <= 0 {
			http.Error(w, "owner_id, mint and entry_price are required", http.StatusBadRequest)
			return
		}
		tradeID := registry.Open(ctx, monitor.Position{
			OwnerID:         req.OwnerID,
			Mint:            token.Mint(req.Mint),
			EntryPrice:      decimal.NewFromFloat(req.EntryPrice),
			Amount:          decimal.NewFromFloat(req.Amount),
			TakeProfitPct:   req.TakeProfitPct,
			StopLossPct:     req.StopLossPct,
			TrailingStopPct: req.TrailingStopPct,
		})
		if stream != nil {
			stream.Track(token.Mint(req.Mint))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"trade_id": tradeID})
	})

	mux.HandleFunc("/positions/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		owner := r.URL.Query().Get("owner")
		if owner == "" {
			http.Error(w, "owner is required", http.StatusBadRequest)
			return
		}
		n := registry.CancelAll(owner)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"cancelled": n})
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("HTTP server started (metrics + health + stats + positions)")

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("HTTP server error")
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "fetchd").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "fetchd").
			Str("instance", general.InstanceID).Logger()
	}
}
