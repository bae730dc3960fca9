package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"smcbot/internal/domain"
	"smcbot/internal/ports"
)

// Repository implements the ports.PositionRepository and ports.TradeRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/smc_bot.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// FULL sync: a trade record must survive a crash once its transaction commits.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		margin_usd REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		exchange_order_id TEXT NOT NULL DEFAULT '',
		dry_run INTEGER NOT NULL DEFAULT 0,
		exit_price REAL DEFAULT NULL,
		closed_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position_id TEXT NOT NULL UNIQUE,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		margin_usd REAL NOT NULL,
		stop_loss REAL NOT NULL,
		take_profit REAL NOT NULL,
		pnl_usd REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL,
		reason TEXT NOT NULL,
		outcome TEXT NOT NULL
	);
	-- At most one OPEN position per symbol
	CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_symbol ON positions (symbol) WHERE status = 'OPEN';
	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
	CREATE INDEX IF NOT EXISTS idx_trade_records_closed_at ON trade_records (closed_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PositionRepository Implementation ---

// Create saves a newly opened position. A second OPEN position for the same
// symbol is rejected with ErrRecordExists.
func (r *Repository) Create(ctx context.Context, pos *domain.Position) error {
	const query = `
	INSERT INTO positions (id, symbol, direction, entry_price, quantity, leverage, margin_usd,
	                       stop_loss, take_profit, opened_at, status, exchange_order_id, dry_run)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		pos.ID, pos.Symbol, pos.Direction, pos.EntryPrice, pos.Quantity, pos.Leverage, pos.MarginUSD,
		pos.StopLoss, pos.TakeProfit, pos.OpenedAt, pos.Status, pos.ExchangeOrderID, pos.DryRun)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert position for symbol %s: %w: %w", pos.Symbol, ports.ErrRecordExists, err)
		}
		return fmt.Errorf("failed to insert position for symbol %s: %w: %w", pos.Symbol, ports.ErrQueryFailed, err)
	}
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": pos.ID, "symbol": pos.Symbol})
	return nil
}

const positionColumns = `id, symbol, direction, entry_price, quantity, leverage, margin_usd,
	       stop_loss, take_profit, opened_at, status, exchange_order_id, dry_run`

// FindOpen returns every OPEN position ordered by symbol.
func (r *Repository) FindOpen(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE status = ? ORDER BY symbol`

	rows, err := r.db.QueryContext(ctx, query, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpen: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// FindOpenBySymbol retrieves the currently open position for a given symbol, if any.
func (r *Repository) FindOpenBySymbol(ctx context.Context, symbol string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE symbol = ? AND status = ?`

	row := r.db.QueryRowContext(ctx, query, symbol, domain.StatusOpen)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No open position found for symbol", map[string]interface{}{"symbol": symbol})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open position for symbol %s: %w", symbol, err)
	}
	return pos, nil
}

// FindByID retrieves a position by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Position not found by ID", map[string]interface{}{"positionID": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query position by ID %s: %w", id, err)
	}
	return pos, nil
}

// --- TradeRepository Implementation ---

// RecordClose flips the position to its closed status and appends the trade
// record in one transaction.
func (r *Repository) RecordClose(ctx context.Context, rec *domain.TradeRecord) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin close transaction for %s: %w: %w", rec.PositionID, ports.ErrDBConnection, err)
	}
	defer tx.Rollback()

	const update = `
	UPDATE positions SET status = ?, exit_price = ?, closed_at = ?
	WHERE id = ? AND status = ?`
	result, err := tx.ExecContext(ctx, update, rec.Reason.Status(), rec.ExitPrice, rec.ClosedAt, rec.PositionID, domain.StatusOpen)
	if err != nil {
		return 0, fmt.Errorf("failed to close position %s: %w: %w", rec.PositionID, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected closing position %s: %w", rec.PositionID, err)
	}
	if rowsAffected == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM positions WHERE id = ?`, rec.PositionID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("position %s not found for close: %w", rec.PositionID, ports.ErrNotFound)
		}
		return 0, fmt.Errorf("position %s already %s: %w", rec.PositionID, status, ports.ErrRecordExists)
	}

	const insert = `
	INSERT INTO trade_records (position_id, symbol, direction, entry_price, exit_price, quantity, leverage,
	                           margin_usd, stop_loss, take_profit, pnl_usd, pnl_pct, opened_at, closed_at,
	                           reason, outcome)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err = tx.ExecContext(ctx, insert,
		rec.PositionID, rec.Symbol, rec.Direction, rec.EntryPrice, rec.ExitPrice, rec.Quantity, rec.Leverage,
		rec.MarginUSD, rec.StopLoss, rec.TakeProfit, rec.PNLUSD, rec.PNLPct, rec.OpenedAt, rec.ClosedAt,
		rec.Reason, rec.Outcome)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("trade record for position %s: %w: %w", rec.PositionID, ports.ErrRecordExists, err)
		}
		return 0, fmt.Errorf("failed to insert trade record for %s: %w: %w", rec.PositionID, ports.ErrQueryFailed, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade record %s: %w", rec.PositionID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit close of %s: %w: %w", rec.PositionID, ports.ErrUpdateFailed, err)
	}
	rec.ID = id
	r.logger.Debug(ctx, "Trade record appended", map[string]interface{}{
		"tradeID": id, "positionID": rec.PositionID, "symbol": rec.Symbol, "pnlUSD": rec.PNLUSD,
	})
	return id, nil
}

const tradeColumns = `id, position_id, symbol, direction, entry_price, exit_price, quantity, leverage,
	       margin_usd, stop_loss, take_profit, pnl_usd, pnl_pct, opened_at, closed_at, reason, outcome`

// FindAll returns the whole trade log, oldest first.
func (r *Repository) FindAll(ctx context.Context) ([]*domain.TradeRecord, error) {
	return r.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trade_records ORDER BY id ASC`)
}

// FindRecent returns up to limit records, newest first.
func (r *Repository) FindRecent(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	return r.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trade_records ORDER BY id DESC LIMIT ?`, limit)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade records: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.TradeRecord, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade record: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade record rows: %w", err)
	}
	return trades, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var direction, status string
	err := s.Scan(
		&p.ID, &p.Symbol, &direction, &p.EntryPrice, &p.Quantity, &p.Leverage, &p.MarginUSD,
		&p.StopLoss, &p.TakeProfit, &p.OpenedAt, &status, &p.ExchangeOrderID, &p.DryRun)
	if err != nil {
		return nil, err
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// scanTrade scans a row into a domain.TradeRecord struct.
func scanTrade(s scanner) (*domain.TradeRecord, error) {
	t := &domain.TradeRecord{}
	var direction, reason, outcome string
	err := s.Scan(
		&t.ID, &t.PositionID, &t.Symbol, &direction, &t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.Leverage,
		&t.MarginUSD, &t.StopLoss, &t.TakeProfit, &t.PNLUSD, &t.PNLPct, &t.OpenedAt, &t.ClosedAt, &reason, &outcome)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.Reason = domain.CloseReason(reason)
	t.Outcome = domain.Outcome(outcome)
	return t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
