package cli

import (
	"context"
	"fmt"

	"smcbot/config"
	"smcbot/internal/adapters/binanceclient"
	"smcbot/internal/adapters/logger"
	"smcbot/internal/adapters/paper"
	"smcbot/internal/adapters/sqlite"
	"smcbot/internal/app"
	"smcbot/internal/ports"
	"smcbot/internal/risk"
	"smcbot/internal/strategy"
	"smcbot/internal/tracker"
)

// environment holds what every command needs: configuration, the logger and
// the durable store.
type environment struct {
	cfg     *config.Config
	logger  *logger.ZapLogger
	repo    *sqlite.Repository
	tracker *tracker.Tracker
}

// openEnvironment loads configuration, starts logging and opens the database.
func openEnvironment() (*environment, error) {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logger.ParseLevel(logLevelFlag)
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	appLogger.Debug(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "file": cfg.LogFile})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("failed to initialize database repository: %w", err)
	}

	trk, err := tracker.New(repo, appLogger)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return &environment{cfg: cfg, logger: appLogger, repo: repo, tracker: trk}, nil
}

// Close releases the database and flushes the logger.
func (e *environment) Close() {
	if err := e.repo.Close(); err != nil {
		e.logger.Error(context.Background(), err, "Error closing database repository")
	}
	_ = e.logger.Sync()
}

// exchange creates the Binance client. Market data always comes from it.
func (e *environment) exchange() (*binanceclient.Client, error) {
	// 4. Initialize Exchange Client (Binance Adapter)
	client, err := binanceclient.New(binanceclient.Config{
		APIKey:             e.cfg.APIKey,
		SecretKey:          e.cfg.SecretKey,
		UseTestnet:         e.cfg.IsTestnet,
		Logger:             e.logger,
		MinRequestInterval: e.cfg.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Binance client: %w", err)
	}
	return client, nil
}

// gateway selects the execution gateway for the configured trading mode.
func (e *environment) gateway(client *binanceclient.Client) (ports.ExecutionGateway, error) {
	// 5. Select Execution Gateway
	if !e.cfg.DryRun {
		e.logger.Warn(context.Background(), "LIVE TRADING enabled: orders will be sent to Binance", map[string]interface{}{"testnet": e.cfg.IsTestnet})
		return client, nil
	}
	gw, err := paper.New(paper.Config{Prices: client, Logger: e.logger})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize paper gateway: %w", err)
	}
	e.logger.Info(context.Background(), "Dry run: orders are simulated")
	return gw, nil
}

// tradingService composes the full engine.
func (e *environment) tradingService() (*app.TradingService, error) {
	client, err := e.exchange()
	if err != nil {
		return nil, err
	}
	gw, err := e.gateway(client)
	if err != nil {
		return nil, err
	}

	// 6. Initialize Strategy and Risk Manager
	strat, err := strategy.New(e.cfg.StrategyConfig(), e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trading strategy: %w", err)
	}
	riskManager, err := risk.NewRiskManager(e.cfg.RiskConfig(), e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize risk manager: %w", err)
	}
	detectorCfg := e.cfg.DetectorConfig()
	newDetector := func(symbol string) (ports.SignalDetector, error) {
		d, err := strategy.NewDetector(symbol, detectorCfg, e.logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	// 7. Initialize Application Service
	svc, err := app.NewTradingService(e.cfg, e.logger, client, gw, e.repo, e.tracker, strat, riskManager, newDetector)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize trading service: %w", err)
	}
	return svc, nil
}
