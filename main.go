package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradingArena/config"
	"tradingArena/internal/adapters/binanceclient"
	"tradingArena/internal/adapters/httpapi"
	"tradingArena/internal/adapters/logger"
	"tradingArena/internal/adapters/sqlite"
	"tradingArena/internal/adapters/synthetic"
	"tradingArena/internal/app"
	"tradingArena/internal/ports"
	"tradingArena/internal/pricing"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "zap" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize zap logger: %v", err)
		}
		defer func() { _ = zl.Sync() }()
		appLogger = zl
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Price Source
	source, err := newPriceSource(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize price source")
		log.Fatalf("FATAL: Failed to initialize price source: %v", err)
	}
	gate, err := pricing.NewGate(pricing.Config{
		Source:   source,
		Logger:   appLogger,
		Timeout:  cfg.PriceTimeout,
		MaxTries: uint(cfg.PriceMaxTries),
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize pricing gate")
		log.Fatalf("FATAL: Failed to initialize pricing gate: %v", err)
	}
	appLogger.Info(context.Background(), "Price source initialized", map[string]interface{}{"source": cfg.PriceSource})

	// 5. Initialize Application Service
	sessionService, err := app.NewSessionService(
		cfg,
		appLogger,
		repo,
		gate,
		app.NewUniformSampler(cfg.FractionMin, cfg.FractionMax, cfg.RandomSeed),
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize session service")
		log.Fatalf("FATAL: Failed to initialize session service: %v", err)
	}
	defer sessionService.Shutdown()

	if err := sessionService.Restore(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to restore persisted state")
		log.Fatalf("FATAL: Failed to restore persisted state: %v", err)
	}

	// 6. Optional roster file opens the first session
	if cfg.RosterFile != "" {
		wallets, names, err := config.LoadRosterFile(cfg.RosterFile)
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to read roster file")
			log.Fatalf("FATAL: Failed to read roster file: %v", err)
		}
		if _, err := sessionService.LoadRoster(context.Background(), wallets, names); err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to load roster")
			log.Fatalf("FATAL: Failed to load roster: %v", err)
		}
	}

	// 7. Start the HTTP API
	server := httpapi.NewServer(sessionService, appLogger)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start(cfg.HTTPAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info(context.Background(), "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil {
			appLogger.Error(context.Background(), err, "HTTP API exited with error")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		appLogger.Error(context.Background(), err, "Error stopping HTTP API")
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}

func newPriceSource(cfg *config.Config, appLogger ports.Logger) (ports.PriceSource, error) {
	switch cfg.PriceSource {
	case config.PriceSourceBinance:
		return binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Symbol:     cfg.Symbol,
			Logger:     appLogger,
		})
	default:
		return synthetic.NewFeed(synthetic.Config{
			Seed:       cfg.RandomSeed,
			StartPrice: cfg.SyntheticStartPrice,
			Volatility: cfg.SyntheticVolatility,
		})
	}
}
