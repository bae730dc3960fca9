package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"smcbot/config"
	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

var baseTime = time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)

// series builds n closed 15m candles around price.
func series(symbol string, n int, price float64) []*domain.Kline {
	out := make([]*domain.Kline, n)
	for i := range out {
		open := baseTime.Add(time.Duration(i) * 15 * time.Minute)
		out[i] = &domain.Kline{
			Symbol: symbol, Interval: "15m",
			OpenTime: open, CloseTime: open.Add(15*time.Minute - time.Millisecond),
			Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10,
			IsFinal: true,
		}
	}
	return out
}

type mockMarket struct {
	klines map[string][]*domain.Kline
	err    error
	calls  int
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	all := m.klines[symbol]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

type mockGateway struct {
	prices     map[string]float64
	priceErr   error
	openErr    error
	closeErrs  []error // Consumed one per ClosePosition call
	opened     []domain.OrderIntent
	closeCalls int
	dryRun     bool
	nextID     int
	afterClose func() // Runs once the exit has filled
}

func newMockGateway() *mockGateway {
	return &mockGateway{prices: make(map[string]float64), dryRun: true}
}

func (m *mockGateway) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if m.priceErr != nil {
		return 0, m.priceErr
	}
	p, ok := m.prices[symbol]
	if !ok {
		return 0, ports.ErrNotFound
	}
	return p, nil
}

func (m *mockGateway) OpenPosition(ctx context.Context, intent domain.OrderIntent) (*domain.Position, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.opened = append(m.opened, intent)
	m.nextID++
	return &domain.Position{
		ID: intent.Symbol + "-" + strconv.Itoa(m.nextID), Symbol: intent.Symbol, Direction: intent.Direction,
		EntryPrice: intent.EntryPrice, Quantity: intent.Quantity, Leverage: intent.Leverage,
		MarginUSD: intent.MarginUSD, StopLoss: intent.StopLoss, TakeProfit: intent.TakeProfit,
		OpenedAt: baseTime, Status: domain.StatusOpen, DryRun: m.dryRun,
	}, nil
}

func (m *mockGateway) ClosePosition(ctx context.Context, pos *domain.Position, reason domain.CloseReason, price float64) (*domain.TradeRecord, error) {
	m.closeCalls++
	if len(m.closeErrs) > 0 {
		err := m.closeErrs[0]
		m.closeErrs = m.closeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if m.afterClose != nil {
		m.afterClose()
	}
	return domain.NewTradeRecord(pos, price, reason, baseTime.Add(time.Hour)), nil
}

func (m *mockGateway) Instrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return &domain.Instrument{Symbol: symbol, StepSize: 0.001, MinQty: 0.001}, nil
}

func (m *mockGateway) IsDryRun() bool {
	return m.dryRun
}

type mockPositionRepo struct {
	positions   map[string]*domain.Position
	createErr   error
	createCalls int
}

func newMockPositionRepo(open ...*domain.Position) *mockPositionRepo {
	r := &mockPositionRepo{positions: make(map[string]*domain.Position)}
	for _, p := range open {
		r.positions[p.ID] = p
	}
	return r
}

func (m *mockPositionRepo) Create(ctx context.Context, pos *domain.Position) error {
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	m.positions[pos.ID] = pos
	return nil
}

func (m *mockPositionRepo) FindOpen(ctx context.Context) ([]*domain.Position, error) {
	var out []*domain.Position
	for _, p := range m.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *mockPositionRepo) FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Position, error) {
	for _, p := range m.positions {
		if p.IsOpen() && p.Symbol == symbol {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPositionRepo) FindByID(ctx context.Context, id string) (*domain.Position, error) {
	return m.positions[id], nil
}

type mockTracker struct {
	records    []*domain.TradeRecord
	recordErrs []error
	seen       map[string]bool
}

func newMockTracker() *mockTracker {
	return &mockTracker{seen: make(map[string]bool)}
}

func (m *mockTracker) Record(ctx context.Context, rec *domain.TradeRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("record %s: %w: %w", rec.PositionID, ports.ErrDBConnection, err)
	}
	if len(m.recordErrs) > 0 {
		err := m.recordErrs[0]
		m.recordErrs = m.recordErrs[1:]
		if err != nil {
			return err
		}
	}
	if m.seen[rec.PositionID] {
		return ports.ErrRecordExists
	}
	m.seen[rec.PositionID] = true
	m.records = append(m.records, rec)
	return nil
}

func (m *mockTracker) Summary(ctx context.Context) (domain.PerformanceSummary, error) {
	return domain.PerformanceSummary{TotalTrades: len(m.records)}, nil
}

// liveGateway adds the session and reconciliation hooks of a signed exchange
// client to mockGateway.
type liveGateway struct {
	*mockGateway
	pingErr error
	syncErr error
	pings   int
	syncs   int
	filled  map[string]*domain.TradeRecord // Exit fills keyed by position id
}

func newLiveGateway() *liveGateway {
	gw := newMockGateway()
	gw.dryRun = false
	return &liveGateway{mockGateway: gw, filled: make(map[string]*domain.TradeRecord)}
}

func (l *liveGateway) Ping(ctx context.Context) error {
	l.pings++
	return l.pingErr
}

func (l *liveGateway) SetServerTime(ctx context.Context) error {
	l.syncs++
	return l.syncErr
}

func (l *liveGateway) ReconcileClose(ctx context.Context, pos *domain.Position) (*domain.TradeRecord, error) {
	return l.filled[pos.ID], nil
}

// mockStrategy qualifies an entry for every symbol listed in entries.
type mockStrategy struct {
	entries map[string]domain.Direction
	calls   int
}

func (m *mockStrategy) RequiredDataPoints() int {
	return 5
}

func (m *mockStrategy) Decide(ctx context.Context, klines []*domain.Kline, signals domain.SignalSet) (*domain.EntryDecision, error) {
	m.calls++
	if len(klines) < 5 {
		return nil, ports.ErrInsufficientData
	}
	dir, ok := m.entries[signals.Symbol]
	if !ok {
		return nil, nil
	}
	price := klines[len(klines)-1].Close
	sl, tp := price*0.99, price*1.02
	if dir == domain.Bearish {
		sl, tp = price*1.01, price*0.98
	}
	return &domain.EntryDecision{Symbol: signals.Symbol, Direction: dir, EntryPrice: price, StopLoss: sl, TakeProfit: tp}, nil
}

// mockDetector reports an empty signal set for its symbol.
type mockDetector struct {
	symbol string
	err    error
}

func (m *mockDetector) Detect(ctx context.Context, klines []*domain.Kline) (domain.SignalSet, error) {
	if m.err != nil {
		return domain.SignalSet{}, m.err
	}
	return domain.SignalSet{Symbol: m.symbol, WindowLen: len(klines)}, nil
}

func mockDetectors(symbol string) (ports.SignalDetector, error) {
	return &mockDetector{symbol: symbol}, nil
}

func testConfig(symbols ...string) *config.Config {
	return &config.Config{
		Symbols:         symbols,
		QuoteCurrency:   "USDT",
		Interval:        "15m",
		WindowSize:      50,
		Leverage:        20,
		MaxLeverage:     20,
		MarginPerTrade:  2,
		MaxPositions:    3,
		DryRun:          true,
		CycleInterval:   10 * time.Millisecond,
		CallTimeout:     time.Second,
		MaxRetries:      3,
		RetryBaseDelay:  time.Millisecond,
		BalanceCooldown: time.Hour,
	}
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, CallTimeout: time.Second}
}

var errBoom = errors.New("boom")
