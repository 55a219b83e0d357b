package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"stocksim/internal/domain"
	"stocksim/internal/ports"
)

// Store implements ports.LedgerRepository using SQLite. All mutations run
// through Transact so the ledger's all-or-nothing guarantees come directly
// from database transactions.
type Store struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite store.
type Config struct {
	DBPath   string
	SeedCash decimal.Decimal // Initial cash balance written when none exists
	Logger   ports.Logger
}

// NewStore opens (and if needed creates) the portfolio database.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite store")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/portfolio.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency between the simulation sweep and manual
	// operations; busy timeout so a writer waits instead of erroring.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}

	// Single connection: serializes writers at the pool level and keeps the
	// Go driver from fighting SQLite's own locking.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, logger: cfg.Logger}
	if err := s.initializeSchema(context.Background(), cfg.SeedCash); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite store initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Portfolio database ready", map[string]interface{}{"path": dbPath})
	return s, nil
}

// initializeSchema creates the trades and balance tables if they don't exist
// and seeds the single balance row. Prices are stored as TEXT so decimal
// values round-trip exactly.
func (s *Store) initializeSchema(ctx context.Context, seed decimal.Decimal) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		shares INTEGER NOT NULL,
		buy_price TEXT NOT NULL,
		sell_price TEXT DEFAULT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		close_reason TEXT DEFAULT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS balance (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cash TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_ticker_status ON trades (ticker, status);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}

	const seedQuery = `INSERT INTO balance (id, cash) SELECT 1, ? WHERE NOT EXISTS (SELECT 1 FROM balance WHERE id = 1)`
	if _, err := s.db.ExecContext(ctx, seedQuery, seed.String()); err != nil {
		return fmt.Errorf("failed to seed balance row: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info(context.Background(), "Closing portfolio database")
		return s.db.Close()
	}
	return nil
}

// Transact runs fn inside a single database transaction, rolling back when fn
// returns an error.
func (s *Store) Transact(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	if err := fn(&ledgerTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error(ctx, rbErr, "Rollback failed after ledger transaction error")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger transaction: %w", err)
	}
	return nil
}

// CashBalance returns the committed cash balance.
func (s *Store) CashBalance(ctx context.Context) (decimal.Decimal, error) {
	return scanCash(s.db.QueryRowContext(ctx, `SELECT cash FROM balance WHERE id = 1`))
}

// OpenLots returns every open lot ordered by ID ascending.
func (s *Store) OpenLots(ctx context.Context) ([]*domain.Trade, error) {
	return s.queryTrades(ctx, selectTrades+` WHERE status = ? ORDER BY id ASC`, domain.StatusOpen)
}

// OpenLotsByTicker returns the ticker's open lots ordered by ID ascending.
func (s *Store) OpenLotsByTicker(ctx context.Context, ticker string) ([]*domain.Trade, error) {
	return s.queryTrades(ctx, selectTrades+` WHERE ticker = ? AND status = ? ORDER BY id ASC`, ticker, domain.StatusOpen)
}

// AllTrades returns every trade row ordered by ID ascending.
func (s *Store) AllTrades(ctx context.Context) ([]*domain.Trade, error) {
	return s.queryTrades(ctx, selectTrades+` ORDER BY id ASC`)
}

// RealizedPL sums (sell_price - buy_price) * shares over closed lots. The sum
// is computed in Go because prices are stored as decimal TEXT.
func (s *Store) RealizedPL(ctx context.Context) (decimal.Decimal, error) {
	trades, err := s.queryTrades(ctx, selectTrades+` WHERE status = ?`, domain.StatusClosed)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.RealizedPL())
	}
	return total, nil
}

func (s *Store) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- Transaction implementation ---

// ledgerTx implements ports.LedgerTx over *sql.Tx.
type ledgerTx struct {
	tx *sql.Tx
}

func (l *ledgerTx) CashBalance() (decimal.Decimal, error) {
	return scanCash(l.tx.QueryRow(`SELECT cash FROM balance WHERE id = 1`))
}

func (l *ledgerTx) AdjustCash(delta decimal.Decimal) error {
	cash, err := l.CashBalance()
	if err != nil {
		return err
	}
	newCash := cash.Add(delta)
	if _, err := l.tx.Exec(`UPDATE balance SET cash = ? WHERE id = 1`, newCash.String()); err != nil {
		return fmt.Errorf("failed to update cash balance: %w", err)
	}
	return nil
}

func (l *ledgerTx) InsertTrade(t *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (ticker, shares, buy_price, sell_price, status, close_reason, opened_at, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var sellPrice, reason sql.NullString
	var closedAt sql.NullTime
	if t.Status == domain.StatusClosed {
		sellPrice = sql.NullString{String: t.SellPrice.String(), Valid: true}
		reason = sql.NullString{String: string(t.Reason), Valid: true}
		closedAt = sql.NullTime{Time: t.ClosedAt, Valid: true}
	}

	result, err := l.tx.Exec(query,
		t.Ticker, t.Shares, t.BuyPrice.String(), sellPrice, t.Status, reason, t.OpenedAt, closedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for ticker %s: %w", t.Ticker, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", t.Ticker, err)
	}
	t.ID = id
	return id, nil
}

func (l *ledgerTx) OpenLotsByTicker(ticker string) ([]*domain.Trade, error) {
	rows, err := l.tx.Query(selectTrades+` WHERE ticker = ? AND status = ? ORDER BY id ASC`, ticker, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open lots for ticker %s: %w", ticker, err)
	}
	defer rows.Close()

	lots := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open lot: %w", err)
		}
		lots = append(lots, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open lots: %w", err)
	}
	return lots, nil
}

func (l *ledgerTx) FindTrade(id int64) (*domain.Trade, error) {
	t, err := scanTrade(l.tx.QueryRow(selectTrades+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade %d: %w", id, err)
	}
	return t, nil
}

func (l *ledgerTx) CloseTrade(id int64, sellPrice decimal.Decimal, reason domain.ExitReason, closedAt time.Time) error {
	const query = `UPDATE trades SET sell_price = ?, status = ?, close_reason = ?, closed_at = ? WHERE id = ? AND status = ?`
	result, err := l.tx.Exec(query, sellPrice.String(), domain.StatusClosed, string(reason), closedAt, id, domain.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to close trade %d: %w", id, err)
	}
	return requireRow(result, id)
}

func (l *ledgerTx) ReduceTrade(id int64, shares int64) error {
	if shares <= 0 {
		return fmt.Errorf("reduce trade %d: shares must stay positive, got %d", id, shares)
	}
	const query = `UPDATE trades SET shares = ? WHERE id = ? AND status = ?`
	result, err := l.tx.Exec(query, shares, id, domain.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to reduce trade %d: %w", id, err)
	}
	return requireRow(result, id)
}

func (l *ledgerTx) Wipe(seed decimal.Decimal) error {
	if _, err := l.tx.Exec(`DELETE FROM trades`); err != nil {
		return fmt.Errorf("failed to clear trades: %w", err)
	}
	if _, err := l.tx.Exec(`UPDATE balance SET cash = ? WHERE id = 1`, seed.String()); err != nil {
		return fmt.Errorf("failed to reset cash balance: %w", err)
	}
	return nil
}

// --- Helpers ---

const selectTrades = `
	SELECT id, ticker, shares, buy_price, COALESCE(sell_price, ''), status, COALESCE(close_reason, ''), opened_at, closed_at
	FROM trades`

func requireRow(result sql.Result, id int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("open trade %d not found: %w", id, ports.ErrNotFound)
	}
	return nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCash(s scanner) (decimal.Decimal, error) {
	var raw string
	if err := s.Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("failed to read cash balance: %w", err)
	}
	cash, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt cash balance %q: %w", raw, err)
	}
	return cash, nil
}

// scanTrade scans a row into a domain.Trade.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var buyPrice, sellPrice, status, reason string
	var closedAt sql.NullTime
	err := s.Scan(&t.ID, &t.Ticker, &t.Shares, &buyPrice, &sellPrice, &status, &reason, &t.OpenedAt, &closedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if t.BuyPrice, err = decimal.NewFromString(buyPrice); err != nil {
		return nil, fmt.Errorf("corrupt buy price %q on trade %d: %w", buyPrice, t.ID, err)
	}
	if sellPrice != "" {
		if t.SellPrice, err = decimal.NewFromString(sellPrice); err != nil {
			return nil, fmt.Errorf("corrupt sell price %q on trade %d: %w", sellPrice, t.ID, err)
		}
	}
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	t.Status = domain.TradeStatus(status)
	t.Reason = domain.ExitReason(reason)
	return t, nil
}
