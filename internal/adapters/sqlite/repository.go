package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradingArena/internal/domain"
	"tradingArena/internal/leaderboard"
	"tradingArena/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.PositionRepository and ports.SettlementRepository interfaces using SQLite.
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
		dbPath = "./data/arena.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode so readers don't block the settlement transaction
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
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

	// Single writer connection; SQLite serializes writes anyway
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
// positions keeps rowid so insertion order survives upserts.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		wallet_id TEXT PRIMARY KEY,
		starting_capital REAL NOT NULL,
		cash_balance REAL NOT NULL CHECK (cash_balance >= 0),
		token_balance REAL NOT NULL CHECK (token_balance >= 0),
		trade_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS liquidation_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		starting_capital REAL NOT NULL,
		final_value REAL NOT NULL,
		tokens_liquidated REAL NOT NULL,
		liquidation_cash REAL NOT NULL,
		profit_loss REAL NOT NULL,
		profit_loss_pct REAL NOT NULL,
		settlement_price REAL NOT NULL,
		settled_at TIMESTAMP NOT NULL,
		triggered_by TEXT NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leaderboard (
		rank INTEGER PRIMARY KEY,
		session_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		starting_capital REAL NOT NULL,
		final_value REAL NOT NULL,
		tokens_liquidated REAL NOT NULL,
		liquidation_cash REAL NOT NULL,
		profit_loss REAL NOT NULL,
		profit_loss_pct REAL NOT NULL,
		settlement_price REAL NOT NULL,
		settled_at TIMESTAMP NOT NULL
	);
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

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// --- PositionRepository Implementation ---

const upsertPosition = `
	INSERT INTO positions (wallet_id, starting_capital, cash_balance, token_balance, trade_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(wallet_id) DO UPDATE SET
		cash_balance = excluded.cash_balance,
		token_balance = excluded.token_balance,
		trade_count = excluded.trade_count,
		updated_at = excluded.updated_at`

func savePosition(ctx context.Context, ex execer, pos *domain.Position) error {
	_, err := ex.ExecContext(ctx, upsertPosition,
		pos.WalletID, pos.StartingCapital, pos.CashBalance, pos.TokenBalance, pos.TradeCount, pos.CreatedAt, pos.UpdatedAt)
	return err
}

// SavePosition inserts the position or replaces its balances.
func (r *Repository) SavePosition(ctx context.Context, pos *domain.Position) error {
	if err := savePosition(ctx, r.db, pos); err != nil {
		return fmt.Errorf("save position %s failed: %w: %w", pos.WalletID, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Position saved", map[string]interface{}{"wallet": pos.WalletID, "tradeCount": pos.TradeCount})
	return nil
}

// FindAllPositions returns every position in insertion order.
func (r *Repository) FindAllPositions(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT wallet_id, starting_capital, cash_balance, token_balance, trade_count, created_at, updated_at
	FROM positions
	ORDER BY rowid`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query positions failed: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindAllPositions: %w: %w", ports.ErrQueryFailed, err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return positions, nil
}

// --- SettlementRepository Implementation ---

// SaveSettlement writes the post-settlement positions and replaces the
// liquidation_results and leaderboard tables in one transaction.
func (r *Repository) SaveSettlement(ctx context.Context, s *domain.Settlement) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement failed: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const settlePosition = `
	UPDATE positions SET cash_balance = ?, token_balance = 0, updated_at = ? WHERE wallet_id = ?`
	for _, res := range s.Results {
		if _, err = tx.ExecContext(ctx, settlePosition, res.FinalValue, res.SettledAt, res.WalletID); err != nil {
			return fmt.Errorf("settle position %s failed: %w: %w", res.WalletID, ports.ErrUpdateFailed, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM liquidation_results`); err != nil {
		return fmt.Errorf("clear liquidation results failed: %w: %w", ports.ErrDeleteFailed, err)
	}
	const insertResult = `
	INSERT INTO liquidation_results (session_id, wallet_id, starting_capital, final_value, tokens_liquidated,
	                                 liquidation_cash, profit_loss, profit_loss_pct, settlement_price, settled_at,
	                                 triggered_by, reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, res := range s.Results {
		if _, err = tx.ExecContext(ctx, insertResult,
			s.SessionID, res.WalletID, res.StartingCapital, res.FinalValue, res.TokensLiquidated,
			res.LiquidationCash, res.ProfitLoss, res.ProfitLossPct, res.SettlementPrice, res.SettledAt,
			s.TriggeredBy, string(s.Reason)); err != nil {
			return fmt.Errorf("insert liquidation result %s failed: %w: %w", res.WalletID, ports.ErrUpdateFailed, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM leaderboard`); err != nil {
		return fmt.Errorf("clear leaderboard failed: %w: %w", ports.ErrDeleteFailed, err)
	}
	if s.Leaderboard != nil {
		const insertEntry = `
		INSERT INTO leaderboard (rank, session_id, wallet_id, display_name, starting_capital, final_value,
		                         tokens_liquidated, liquidation_cash, profit_loss, profit_loss_pct,
		                         settlement_price, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		for _, e := range s.Leaderboard.Entries {
			if _, err = tx.ExecContext(ctx, insertEntry,
				e.Rank, e.SessionID, e.WalletID, e.DisplayName, e.StartingCapital, e.FinalValue,
				e.TokensLiquidated, e.LiquidationCash, e.ProfitLoss, e.ProfitLossPct,
				e.SettlementPrice, e.SettledAt); err != nil {
				return fmt.Errorf("insert leaderboard entry %s failed: %w: %w", e.WalletID, ports.ErrUpdateFailed, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement failed: %w: %w", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Settlement persisted", map[string]interface{}{"sessionID": s.SessionID, "results": len(s.Results)})
	return nil
}

// FindLiquidationResults returns the last settled batch in roster order.
func (r *Repository) FindLiquidationResults(ctx context.Context) ([]*domain.LiquidationResult, error) {
	const query = `
	SELECT wallet_id, starting_capital, final_value, tokens_liquidated, liquidation_cash,
	       profit_loss, profit_loss_pct, settlement_price, settled_at
	FROM liquidation_results
	ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query liquidation results failed: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	results := make([]*domain.LiquidationResult, 0)
	for rows.Next() {
		res := &domain.LiquidationResult{}
		if err := rows.Scan(&res.WalletID, &res.StartingCapital, &res.FinalValue, &res.TokensLiquidated,
			&res.LiquidationCash, &res.ProfitLoss, &res.ProfitLossPct, &res.SettlementPrice, &res.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan liquidation result: %w: %w", ports.ErrQueryFailed, err)
		}
		results = append(results, res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating liquidation result rows: %w: %w", ports.ErrQueryFailed, err)
	}
	return results, nil
}

// FindLeaderboard returns the last ranked batch, or nil if nothing has been settled.
func (r *Repository) FindLeaderboard(ctx context.Context) (*domain.Leaderboard, error) {
	const query = `
	SELECT rank, session_id, wallet_id, display_name, starting_capital, final_value, tokens_liquidated,
	       liquidation_cash, profit_loss, profit_loss_pct, settlement_price, settled_at
	FROM leaderboard
	ORDER BY rank`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard failed: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.SessionID, &e.WalletID, &e.DisplayName, &e.StartingCapital, &e.FinalValue,
			&e.TokensLiquidated, &e.LiquidationCash, &e.ProfitLoss, &e.ProfitLossPct,
			&e.SettlementPrice, &e.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w: %w", ports.ErrQueryFailed, err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard rows: %w: %w", ports.ErrQueryFailed, err)
	}
	if len(entries) == 0 {
		return nil, nil // Not an error, nothing settled yet
	}

	first := entries[0]
	return &domain.Leaderboard{
		SessionID:       first.SessionID,
		SettlementPrice: first.SettlementPrice,
		SettledAt:       first.SettledAt,
		Entries:         entries,
		Stats:           leaderboard.Stats(entries),
	}, nil
}

// ResetAll wipes positions, liquidation results and leaderboard in one transaction.
func (r *Repository) ResetAll(ctx context.Context) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset failed: %w: %w", ports.ErrDeleteFailed, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range []string{"positions", "liquidation_results", "leaderboard"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s failed: %w: %w", table, ports.ErrDeleteFailed, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reset failed: %w: %w", ports.ErrDeleteFailed, err)
	}
	r.logger.Info(ctx, "Session storage wiped")
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPosition scans a row into a domain.Position struct.
func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	err := s.Scan(&p.WalletID, &p.StartingCapital, &p.CashBalance, &p.TokenBalance, &p.TradeCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}
