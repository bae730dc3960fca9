package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"smcbot/config"
	"smcbot/internal/domain"
	"smcbot/internal/ports"
	"smcbot/internal/risk"
	"smcbot/internal/strategy"
)

// refreshLimit is how many recent candles a warm window requests per cycle.
const refreshLimit = 20

// PerformanceTracker records closed trades and replays the log.
type PerformanceTracker interface {
	TradeRecorder
	Summary(ctx context.Context) (domain.PerformanceSummary, error)
}

// DetectorFactory builds the per-symbol signal detector.
type DetectorFactory func(symbol string) (ports.SignalDetector, error)

// TradingService orchestrates the trading bot's operations.
type TradingService struct {
	cfg          *config.Config
	logger       ports.Logger
	market       ports.MarketData
	gateway      ports.ExecutionGateway
	posRepo      ports.PositionRepository
	tracker      PerformanceTracker
	strategy     ports.EntryStrategy
	risk         *risk.RiskManager
	newDetector  DetectorFactory
	retry        RetryPolicy
	book         *Book
	positions    *PositionManager
	symbols      []string
	requiredBars int

	// Per-symbol state
	windows   map[string]*strategy.Window
	detectors map[string]ports.SignalDetector

	// Filled on the exchange but the snapshot write failed
	unsaved map[string]*domain.Position

	cycleMu sync.Mutex // One cycle at a time
	loaded  bool
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	market ports.MarketData,
	gateway ports.ExecutionGateway,
	posRepo ports.PositionRepository,
	tracker PerformanceTracker,
	strat ports.EntryStrategy,
	riskManager *risk.RiskManager,
	newDetector DetectorFactory,
) (*TradingService, error) {
	if cfg == nil || logger == nil || market == nil || gateway == nil || posRepo == nil ||
		tracker == nil || strat == nil || riskManager == nil || newDetector == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols configured", ports.ErrInvalidConfig)
	}
	if cfg.WindowSize < strat.RequiredDataPoints() {
		return nil, fmt.Errorf("%w: window size %d below strategy requirement %d", ports.ErrInvalidConfig, cfg.WindowSize, strat.RequiredDataPoints())
	}

	policy := RetryPolicy{
		MaxRetries:  cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryBaseDelay * 16,
		CallTimeout: cfg.CallTimeout,
	}
	book := NewBook()
	manager, err := NewPositionManager(gateway, tracker, book, policy, logger)
	if err != nil {
		return nil, err
	}

	symbols := append([]string(nil), cfg.Symbols...)
	sort.Strings(symbols)

	return &TradingService{
		cfg:          cfg,
		logger:       logger,
		market:       market,
		gateway:      gateway,
		posRepo:      posRepo,
		tracker:      tracker,
		strategy:     strat,
		risk:         riskManager,
		newDetector:  newDetector,
		retry:        policy,
		book:         book,
		positions:    manager,
		symbols:      symbols,
		requiredBars: strat.RequiredDataPoints(),
		windows:      make(map[string]*strategy.Window),
		unsaved:      make(map[string]*domain.Position),
		detectors:    make(map[string]ports.SignalDetector),
	}, nil
}

// Book exposes the open-position set.
func (s *TradingService) Book() *Book {
	return s.book
}

// Positions exposes the lifecycle manager.
func (s *TradingService) Positions() *PositionManager {
	return s.positions
}

// Load restores OPEN positions from the durable snapshot. Calling it again
// is a no-op.
func (s *TradingService) Load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	if session, ok := s.gateway.(ports.ExchangeSession); ok {
		if err := session.Ping(ctx); err != nil {
			return fmt.Errorf("exchange connectivity check failed: %w", err)
		}
		if err := session.SetServerTime(ctx); err != nil {
			return fmt.Errorf("failed to set server time: %w", err)
		}
		s.logger.Info(ctx, "Server time synchronized")
	}

	open, err := s.posRepo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	for _, pos := range open {
		if s.reconcile(ctx, pos) {
			continue
		}
		if pos.DryRun != s.gateway.IsDryRun() {
			s.logger.Warn(ctx, "Open position was created in a different trading mode", map[string]interface{}{
				"symbol": pos.Symbol, "positionID": pos.ID, "positionDryRun": pos.DryRun, "gatewayDryRun": s.gateway.IsDryRun(),
			})
		}
		if !s.book.Add(pos) {
			s.logger.Warn(ctx, "Duplicate open position in snapshot ignored", map[string]interface{}{"symbol": pos.Symbol, "positionID": pos.ID})
			continue
		}
		s.logger.Info(ctx, "Found existing open position", map[string]interface{}{
			"symbol": pos.Symbol, "positionID": pos.ID, "entryPrice": pos.EntryPrice,
			"stopLoss": pos.StopLoss, "takeProfit": pos.TakeProfit,
		})
	}
	s.risk.UpdateStats(ctx, s.book.Snapshot())
	s.loaded = true
	s.logger.Info(ctx, "Initial state synchronized", map[string]interface{}{"openPositions": s.book.Len()})
	return nil
}

// reconcile reports whether pos was already closed on the exchange by an exit
// that never reached the trade log. Such a close is recorded now.
func (s *TradingService) reconcile(ctx context.Context, pos *domain.Position) bool {
	reconciler, ok := s.gateway.(ports.CloseReconciler)
	if !ok {
		return false
	}
	rec, err := retry(ctx, s.retry, s.logger, "ReconcileClose", func(ctx context.Context) (*domain.TradeRecord, error) {
		return reconciler.ReconcileClose(ctx, pos)
	})
	if err != nil {
		s.logger.Warn(ctx, "Could not check exit order of open position", map[string]interface{}{"symbol": pos.Symbol, "positionID": pos.ID, "error": err.Error()})
		return false
	}
	if rec == nil {
		return false
	}
	if err := s.tracker.Record(context.WithoutCancel(ctx), rec); err != nil && !errors.Is(err, ports.ErrRecordExists) {
		s.logger.Error(ctx, err, "Exit filled on exchange but trade record failed", map[string]interface{}{"symbol": pos.Symbol, "positionID": pos.ID})
		return false
	}
	pos.Status = rec.Reason.Status()
	s.logger.Warn(ctx, "Recorded exit that filled before the last shutdown", map[string]interface{}{
		"symbol": pos.Symbol, "positionID": pos.ID, "exitPrice": rec.ExitPrice, "pnlUSD": rec.PNLUSD,
	})
	return true
}

// Start runs a cycle immediately and then on every CycleInterval tick until
// ctx is canceled or SIGINT/SIGTERM arrives. Open positions are left open on
// shutdown and picked up again by the next Load.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...", map[string]interface{}{
		"symbols":      s.symbols,
		"interval":     s.cfg.Interval,
		"leverage":     s.cfg.Leverage,
		"margin":       s.cfg.MarginPerTrade,
		"maxPositions": s.cfg.MaxPositions,
		"dryRun":       s.gateway.IsDryRun(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.Load(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error(ctx, err, "Cycle finished with errors")
		}
		select {
		case <-ctx.Done():
			s.logSummary(context.Background(), "Trading Service stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce loads state and runs a single cycle, for external schedulers.
func (s *TradingService) RunOnce(ctx context.Context) error {
	if err := s.Load(ctx); err != nil {
		return err
	}
	return s.RunCycle(ctx)
}

// RunCycle evaluates every open position and then scans each symbol in sorted
// order for a new entry. Symbol failures are logged and joined into the
// returned error; they never stop the cycle.
func (s *TradingService) RunCycle(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := time.Now()
	var errs []error

	// 1. Snapshots that failed to write on open
	if err := s.persistUnsaved(ctx); err != nil {
		errs = append(errs, err)
	}

	// 2. Exits
	closed, err := s.positions.EvaluateAll(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	s.risk.UpdateStats(ctx, s.book.Snapshot())

	// 3. Entries
	opened := 0
	for _, symbol := range s.symbols {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err()))
			break
		}
		pos, err := s.scanSymbol(ctx, symbol)
		switch {
		case err == nil:
			if pos != nil {
				opened++
			}
		case errors.Is(err, ports.ErrInsufficientData):
			s.logger.Debug(ctx, "Skipping symbol: not enough data", map[string]interface{}{"symbol": symbol, "reason": err.Error()})
		case errors.Is(err, ports.ErrCapacityExceeded), errors.Is(err, ports.ErrDuplicateEntry), errors.Is(err, ports.ErrCooldown):
			// Already logged at Info by the risk manager
			s.logger.Debug(ctx, "Skipping entry", map[string]interface{}{"symbol": symbol, "reason": err.Error()})
		default:
			s.logger.Error(ctx, err, "Symbol scan failed", map[string]interface{}{"symbol": symbol})
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}

	s.risk.UpdateStats(ctx, s.book.Snapshot())
	s.logger.Info(ctx, "Cycle complete", map[string]interface{}{
		"closed":        len(closed),
		"opened":        opened,
		"openPositions": s.book.Len(),
		"duration":      time.Since(started).String(),
	})
	s.logSummary(ctx, "Performance")
	return errors.Join(errs...)
}

// scanSymbol refreshes the symbol's window and opens a position when the
// strategy and the risk manager both agree.
func (s *TradingService) scanSymbol(ctx context.Context, symbol string) (*domain.Position, error) {
	window, detector, err := s.stateFor(symbol)
	if err != nil {
		return nil, err
	}

	limit := refreshLimit
	if window.Len() == 0 {
		limit = s.cfg.WindowSize + 1 // The newest candle may still be forming
	}
	klines, err := retry(ctx, s.retry, s.logger, "GetKlines", func(ctx context.Context) ([]*domain.Kline, error) {
		return s.market.GetKlines(ctx, symbol, s.cfg.Interval, limit)
	})
	if err != nil {
		return nil, err
	}
	window.Merge(finalOnly(klines))

	if window.Len() < s.requiredBars {
		return nil, fmt.Errorf("%d of %d candles: %w", window.Len(), s.requiredBars, ports.ErrInsufficientData)
	}

	candles := window.Klines()
	signals, err := detector.Detect(ctx, candles)
	if err != nil {
		return nil, err
	}

	decision, err := s.strategy.Decide(ctx, candles, signals)
	if err != nil || decision == nil {
		return nil, err
	}
	s.logger.Info(ctx, "Entry signal", map[string]interface{}{
		"symbol":      symbol,
		"direction":   decision.Direction.Label(),
		"entryPrice":  decision.EntryPrice,
		"stopLoss":    decision.StopLoss,
		"takeProfit":  decision.TakeProfit,
		"orderBlock":  decision.OrderBlock.String(),
		"stopClamped": decision.StopClamped,
	})

	instrument, err := retry(ctx, s.retry, s.logger, "Instrument", func(ctx context.Context) (*domain.Instrument, error) {
		return s.gateway.Instrument(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}

	intent, err := s.risk.Size(ctx, decision, s.book.Snapshot(), instrument)
	if err != nil {
		return nil, err
	}

	pos, err := retry(ctx, s.retry, s.logger, "OpenPosition", func(ctx context.Context) (*domain.Position, error) {
		return s.gateway.OpenPosition(ctx, *intent)
	})
	if err != nil {
		s.risk.ObserveExecutionError(ctx, err)
		return nil, err
	}

	// Track the fill even if the snapshot write fails so exits stay managed;
	// the write is retried at the start of every cycle.
	s.book.Add(pos)
	if err := s.posRepo.Create(context.WithoutCancel(ctx), pos); err != nil {
		s.unsaved[pos.ID] = pos
		s.logger.Error(ctx, err, "Position opened but not persisted", map[string]interface{}{"symbol": symbol, "positionID": pos.ID})
		return pos, fmt.Errorf("persist position %s: %w", pos.ID, err)
	}

	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"symbol":     pos.Symbol,
		"positionID": pos.ID,
		"direction":  pos.Direction.Label(),
		"quantity":   pos.Quantity,
		"entryPrice": pos.EntryPrice,
		"stopLoss":   pos.StopLoss,
		"takeProfit": pos.TakeProfit,
		"dryRun":     pos.DryRun,
	})
	return pos, nil
}

// persistUnsaved retries the snapshot write of positions whose Create failed.
// It runs before exits are evaluated because a close can only be recorded
// against a stored position.
func (s *TradingService) persistUnsaved(ctx context.Context) error {
	var errs []error
	for posID, pos := range s.unsaved {
		stored, err := s.posRepo.FindByID(ctx, posID)
		if err == nil && stored != nil {
			delete(s.unsaved, posID)
			continue
		}
		err = s.posRepo.Create(context.WithoutCancel(ctx), pos)
		if err != nil && !errors.Is(err, ports.ErrRecordExists) {
			s.logger.Error(ctx, err, "Position snapshot still not persisted", map[string]interface{}{"symbol": pos.Symbol, "positionID": posID})
			errs = append(errs, fmt.Errorf("persist position %s: %w", posID, err))
			continue
		}
		delete(s.unsaved, posID)
		s.logger.Info(ctx, "Position snapshot persisted", map[string]interface{}{"symbol": pos.Symbol, "positionID": posID})
	}
	return errors.Join(errs...)
}

func (s *TradingService) stateFor(symbol string) (*strategy.Window, ports.SignalDetector, error) {
	if w, ok := s.windows[symbol]; ok {
		return w, s.detectors[symbol], nil
	}
	detector, err := s.newDetector(symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("create detector for %s: %w", symbol, err)
	}
	w := strategy.NewWindow(s.cfg.WindowSize)
	s.windows[symbol] = w
	s.detectors[symbol] = detector
	return w, detector, nil
}

func (s *TradingService) logSummary(ctx context.Context, msg string) {
	summary, err := s.tracker.Summary(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Could not compute performance summary", map[string]interface{}{"error": err.Error()})
		return
	}
	stats := s.risk.GetStats()
	s.logger.Info(ctx, msg, map[string]interface{}{
		"trades":        summary.TotalTrades,
		"wins":          summary.Wins,
		"losses":        summary.Losses,
		"winRate":       summary.WinRate,
		"cumulativeROI": summary.CumulativeROI,
		"totalPNLUSD":   summary.TotalPNLUSD,
		"openPositions": stats.OpenPositions,
		"totalMargin":   stats.TotalMargin,
	})
}

// finalOnly drops candles that have not closed yet.
func finalOnly(klines []*domain.Kline) []*domain.Kline {
	out := klines[:0:0]
	for _, k := range klines {
		if k.IsFinal {
			out = append(out, k)
		}
	}
	return out
}
