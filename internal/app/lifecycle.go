package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

// TradeRecorder persists closed trades.
type TradeRecorder interface {
	Record(ctx context.Context, record *domain.TradeRecord) error
}

// PositionManager watches open positions and closes them when a stop or
// target is crossed.
type PositionManager struct {
	gateway  ports.ExecutionGateway
	recorder TradeRecorder
	book     *Book
	retry    RetryPolicy
	logger   ports.Logger

	mu sync.Mutex
	// Closed on the exchange but not yet committed to the trade log.
	pending map[string]*domain.TradeRecord
}

// NewPositionManager creates a PositionManager that operates on book.
func NewPositionManager(gateway ports.ExecutionGateway, recorder TradeRecorder, book *Book, policy RetryPolicy, logger ports.Logger) (*PositionManager, error) {
	if gateway == nil || recorder == nil || book == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for PositionManager")
	}
	return &PositionManager{
		gateway:  gateway,
		recorder: recorder,
		book:     book,
		retry:    policy,
		logger:   logger,
		pending:  make(map[string]*domain.TradeRecord),
	}, nil
}

// Evaluate reads the current price once and closes pos if its stop or target
// is hit. It returns the trade record when a close happened, nil otherwise.
func (m *PositionManager) Evaluate(ctx context.Context, pos *domain.Position) (*domain.TradeRecord, error) {
	op := "Evaluate"
	if rec, done, err := m.flushPending(ctx, pos); done || err != nil {
		return rec, err
	}

	price, err := retry(ctx, m.retry, m.logger, op+" GetPrice", func(ctx context.Context) (float64, error) {
		return m.gateway.GetPrice(ctx, pos.Symbol)
	})
	if err != nil {
		return nil, err
	}

	reason, hit := pos.ExitTriggered(price)
	if !hit {
		m.logger.Debug(ctx, op+": position holding", map[string]interface{}{
			"symbol":     pos.Symbol,
			"price":      price,
			"stopLoss":   pos.StopLoss,
			"takeProfit": pos.TakeProfit,
		})
		return nil, nil
	}

	m.logger.Info(ctx, op+": exit level crossed", map[string]interface{}{
		"symbol": pos.Symbol,
		"reason": reason,
		"price":  price,
	})
	return m.close(ctx, pos, reason, price)
}

// EvaluateAll evaluates every open position. A failure on one position does
// not stop the others; all failures are returned joined.
func (m *PositionManager) EvaluateAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	var closed []*domain.TradeRecord
	var errs []error
	for _, pos := range m.book.Snapshot() {
		rec, err := m.Evaluate(ctx, pos)
		if err != nil {
			m.logger.Error(ctx, err, "Position evaluation failed", map[string]interface{}{"symbol": pos.Symbol, "positionID": pos.ID})
			errs = append(errs, err)
			continue
		}
		if rec != nil {
			closed = append(closed, rec)
		}
	}
	return closed, errors.Join(errs...)
}

// ForceClose exits the position held for symbol at market as MANUAL.
func (m *PositionManager) ForceClose(ctx context.Context, symbol string) (*domain.TradeRecord, error) {
	op := "ForceClose"
	pos := m.book.Get(symbol)
	if pos == nil {
		return nil, fmt.Errorf("%s: no open position for %s: %w", op, symbol, ports.ErrNotFound)
	}
	if rec, done, err := m.flushPending(ctx, pos); done || err != nil {
		return rec, err
	}

	price, err := retry(ctx, m.retry, m.logger, op+" GetPrice", func(ctx context.Context) (float64, error) {
		return m.gateway.GetPrice(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return m.close(ctx, pos, domain.CloseReasonManual, price)
}

func (m *PositionManager) close(ctx context.Context, pos *domain.Position, reason domain.CloseReason, price float64) (*domain.TradeRecord, error) {
	op := "ClosePosition"
	rec, err := retry(ctx, m.retry, m.logger, op, func(ctx context.Context) (*domain.TradeRecord, error) {
		return m.gateway.ClosePosition(ctx, pos, reason, price)
	})
	if err != nil {
		m.logger.Error(ctx, err, op+": position left open", map[string]interface{}{"symbol": pos.Symbol, "positionID": pos.ID})
		return nil, err
	}

	m.mu.Lock()
	m.pending[pos.ID] = rec
	m.mu.Unlock()

	return m.commit(ctx, pos, rec)
}

// flushPending retries the commit of a close the exchange already filled.
// done is true when pos had a pending record.
func (m *PositionManager) flushPending(ctx context.Context, pos *domain.Position) (*domain.TradeRecord, bool, error) {
	m.mu.Lock()
	rec, ok := m.pending[pos.ID]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	m.logger.Warn(ctx, "Retrying trade record for position closed on exchange", map[string]interface{}{"symbol": pos.Symbol, "positionID": pos.ID})
	rec, err := m.commit(ctx, pos, rec)
	return rec, true, err
}

// commit writes rec to the trade log. The exchange already filled the exit, so
// the write runs even when ctx has been canceled by a shutdown.
func (m *PositionManager) commit(ctx context.Context, pos *domain.Position, rec *domain.TradeRecord) (*domain.TradeRecord, error) {
	err := m.recorder.Record(context.WithoutCancel(ctx), rec)
	if err != nil && !errors.Is(err, ports.ErrRecordExists) {
		m.logger.Error(ctx, err, "Trade record not committed; will retry next cycle", map[string]interface{}{"symbol": pos.Symbol, "positionID": pos.ID})
		return nil, fmt.Errorf("record close of %s: %w", pos.ID, err)
	}

	m.mu.Lock()
	delete(m.pending, pos.ID)
	m.mu.Unlock()

	pos.Status = rec.Reason.Status()
	m.book.Remove(pos.Symbol)
	m.logger.Info(ctx, "Position closed", map[string]interface{}{
		"symbol":    pos.Symbol,
		"direction": pos.Direction.Label(),
		"reason":    rec.Reason,
		"exitPrice": rec.ExitPrice,
		"pnlUSD":    rec.PNLUSD,
		"pnlPct":    rec.PNLPct,
	})
	return rec, nil
}
