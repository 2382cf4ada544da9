package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"SolarAlpha/internal/config"
	"SolarAlpha/internal/ledger"
	"SolarAlpha/internal/lifecycle"
	"SolarAlpha/internal/logging"
	"SolarAlpha/internal/metrics"
	"SolarAlpha/internal/model"
	"SolarAlpha/internal/publish"
	"SolarAlpha/internal/recommend"
	"SolarAlpha/internal/scan"
	"SolarAlpha/internal/scheduler"
	"SolarAlpha/internal/trader"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Config errors are fatal before any run starts; the logger is
		// not built yet, so write plainly.
		os.Stderr.WriteString("fatal: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.FilePath)
	if err != nil {
		os.Stderr.WriteString("fatal: " + err.Error() + "\n")
		os.Exit(1)
	}
	log.Info().Str("name", cfg.Bot.Name).Str("mode", cfg.Bot.Mode).Msg("starting")
	if cfg.Bot.Mode == model.ModeReal {
		log.Warn().Msg("real mode configured, but fills are simulated: no broker connectivity is wired")
	}

	// Ledger store
	var store ledger.Store
	if cfg.Ledger.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger.DBPath), 0o755); err != nil {
			log.Fatal().Err(err).Msg("create data dir")
		}
		store, err = ledger.NewSQLiteStore(cfg.Ledger.DBPath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("open ledger")
		}
	} else {
		log.Warn().Msg("no ledger db path configured, entries will not survive restarts")
		store = ledger.NewMemoryStore()
	}
	defer store.Close()

	// Verify the chain before trusting it.
	if ok, seq, err := ledger.VerifyChain(store); err != nil {
		log.Fatal().Err(err).Msg("verify ledger chain")
	} else if !ok {
		metrics.ChainVerifyFailures.Inc()
		log.Fatal().Uint64("seq", seq).Msg("ledger chain verification failed, refusing to start")
	} else {
		log.Info().Uint64("head_seq", seq).Msg("ledger chain verified")
	}

	// Transparency publisher
	var pub publish.Publisher
	if cfg.Ledger.PublicDir != "" {
		fp, err := publish.NewFilePublisher(cfg.Ledger.PublicDir, log)
		if err != nil {
			log.Fatal().Err(err).Msg("init publisher")
		}
		pub = fp
	} else {
		pub = publish.NewNoop()
	}

	// Market scanner and advisor
	fetcher := scan.NewYahooFetcher(cfg.Proxy)
	scanner := scan.NewScanner(fetcher, cfg.DataSources.Symbols, "crypto", log)
	advisor := recommend.NewLlamaAdvisor(scanner, recommend.Options{
		Endpoint:      cfg.AI.Endpoint,
		Model:         cfg.AI.Model,
		Temperature:   cfg.AI.Temperature,
		MaxTokens:     cfg.AI.MaxTokens,
		Timeout:       time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		MaxPosition:   cfg.MaxPositionSize(),
		MinConfidence: cfg.MinConfidence(),
	}, log)
	log.Info().Str("advisor", advisor.Name()).Str("endpoint", cfg.AI.Endpoint).Msg("advisor ready")

	// Execution port (paper fills in both modes)
	executor := trader.NewPaper(cfg.TakeProfit(), cfg.StopLoss(), 0, log)

	// Lifecycle manager
	policy := lifecycle.NewPolicy(cfg.MaxPositionSize(), cfg.MaxTotalExposure(), cfg.Trading.AllowedMarkets)
	mgr := lifecycle.NewManager(store, executor, pub, policy, cfg.Recipients(), lifecycle.Options{
		Mode:        cfg.Bot.Mode,
		ExecTimeout: time.Duration(cfg.Execution.TimeoutSeconds) * time.Second,
		MaxRetries:  cfg.Execution.MaxRetries,
	}, log)

	// Run controller
	ctrl := scheduler.NewController(advisor, mgr, store, pub, scheduler.Options{
		IntervalHours:   cfg.Bot.ScanIntervalHours,
		MaxTradesPerRun: cfg.Bot.MaxTradesPerRun,
		ProposeTimeout:  time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		StartingBalance: cfg.StartingBalance(),
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume anything a previous process left unfinished before
	// scheduling new cycles.
	if err := ctrl.Recover(ctx); err != nil {
		log.Fatal().Err(err).Msg("ledger recovery")
	}

	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Listen)
		defer srv.Close()
		log.Info().Str("listen", cfg.Metrics.Listen).Msg("metrics listener started")
	}

	if err := ctrl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}
	defer ctrl.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, executing a cycle now")
		go func() {
			if err := ctrl.RunCycle(ctx); err != nil {
				log.Error().Err(err).Msg("initial run failed")
			}
		}()
	}

	// Wait for shutdown signal. Stop is cooperative: the current trade
	// and its donation complete, then nothing new starts.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping")
	ctrl.RequestStop()
	ctrl.Stop()
	cancel()
	log.Info().Msg("stopped")
}
