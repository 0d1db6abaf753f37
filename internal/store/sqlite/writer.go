// Package sqlite persists normalized price series and backtest runs.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"dti-backtester/internal/model"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/dti.db"
}

// Writer is a single-connection SQLite writer. Every save runs in one
// transaction.
type Writer struct {
	db  *sqlx.DB
	log *zap.Logger
}

var (
	_ model.SeriesWriter = (*Writer)(nil)
	_ model.RunWriter    = (*Writer)(nil)
)

// DB returns the underlying handle for health checks.
func (w *Writer) DB() *sqlx.DB { return w.db }

func open(path string, conns int) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)
	return db, nil
}

// New opens the database in WAL mode and creates the schema.
func New(cfg WriterConfig, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := open(cfg.DBPath, 1)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite opened", zap.String("path", cfg.DBPath))
	return &Writer{db: db, log: log}, nil
}

func createSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_bars (
			symbol TEXT NOT NULL,
			day    TEXT NOT NULL,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL,
			PRIMARY KEY (symbol, day)
		);

		CREATE TABLE IF NOT EXISTS backtest_runs (
			id           TEXT    PRIMARY KEY,
			symbol       TEXT    NOT NULL,
			created_at   INTEGER NOT NULL,
			params       TEXT    NOT NULL,
			bars         INTEGER NOT NULL,
			dropped_rows INTEGER NOT NULL,
			total_trades INTEGER NOT NULL,
			win_rate     REAL    NOT NULL,
			total_return REAL    NOT NULL,
			metrics      TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_backtest_runs_symbol ON backtest_runs (symbol);

		CREATE TABLE IF NOT EXISTS trades (
			run_id        TEXT    NOT NULL REFERENCES backtest_runs (id) ON DELETE CASCADE,
			seq           INTEGER NOT NULL,
			entry_day     TEXT    NOT NULL,
			entry_price   REAL    NOT NULL,
			exit_day      TEXT    NOT NULL,
			exit_price    REAL    NOT NULL,
			exit_reason   TEXT    NOT NULL,
			pnl_percent   REAL    NOT NULL,
			duration_days INTEGER NOT NULL,
			entry_index   INTEGER NOT NULL,
			exit_index    INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);

		CREATE TABLE IF NOT EXISTS active_positions (
			run_id                 TEXT    PRIMARY KEY REFERENCES backtest_runs (id) ON DELETE CASCADE,
			entry_day              TEXT    NOT NULL,
			entry_price            REAL    NOT NULL,
			entry_index            INTEGER NOT NULL,
			last_day               TEXT    NOT NULL,
			last_price             REAL    NOT NULL,
			unrealized_pnl_percent REAL    NOT NULL,
			duration_days          INTEGER NOT NULL,
			stop_loss_price        REAL    NOT NULL,
			target_price           REAL    NOT NULL
		);
	`)
	return err
}

// SaveSeries replaces every stored bar of s.Symbol with s.Bars.
func (w *Writer) SaveSeries(ctx context.Context, s model.Series) error {
	start := time.Now()
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM price_bars WHERE symbol = ?`, s.Symbol); err != nil {
		return fmt.Errorf("sqlite clear bars %s: %w", s.Symbol, err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO price_bars (symbol, day, open, high, low, close, volume)
		VALUES (:symbol, :day, :open, :high, :low, :close, :volume)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range s.Bars {
		if _, err := stmt.ExecContext(ctx, barRowFrom(s.Symbol, &s.Bars[i])); err != nil {
			return fmt.Errorf("sqlite insert bar %s %s: %w", s.Symbol, s.Bars[i].Day(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	w.log.Debug("series saved", zap.String("symbol", s.Symbol), zap.Int("bars", len(s.Bars)), zap.Duration("took", time.Since(start)))
	return nil
}

// SaveRun stores a run with its trades and open position.
func (w *Writer) SaveRun(ctx context.Context, run model.BacktestRun) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO backtest_runs (id, symbol, created_at, params, bars, dropped_rows, total_trades, win_rate, total_return, metrics)
		VALUES (:id, :symbol, :created_at, :params, :bars, :dropped_rows, :total_trades, :win_rate, :total_return, :metrics)
	`, runRow{
		ID:          run.ID,
		Symbol:      run.Symbol,
		CreatedAt:   run.CreatedAt.UnixMilli(),
		Params:      string(params),
		Bars:        run.Bars,
		DroppedRows: run.DroppedRows,
		TotalTrades: run.Metrics.TotalTrades,
		WinRate:     run.Metrics.WinRate,
		TotalReturn: run.Metrics.TotalReturnPercent,
		Metrics:     string(metrics),
	})
	if err != nil {
		return fmt.Errorf("sqlite insert run %s: %w", run.ID, err)
	}

	for i := range run.Trades {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO trades (run_id, seq, entry_day, entry_price, exit_day, exit_price, exit_reason,
				pnl_percent, duration_days, entry_index, exit_index)
			VALUES (:run_id, :seq, :entry_day, :entry_price, :exit_day, :exit_price, :exit_reason,
				:pnl_percent, :duration_days, :entry_index, :exit_index)
		`, tradeRowFrom(run.ID, i, &run.Trades[i])); err != nil {
			return fmt.Errorf("sqlite insert trade %s/%d: %w", run.ID, i, err)
		}
	}

	if run.Active != nil {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO active_positions (run_id, entry_day, entry_price, entry_index, last_day, last_price,
				unrealized_pnl_percent, duration_days, stop_loss_price, target_price)
			VALUES (:run_id, :entry_day, :entry_price, :entry_index, :last_day, :last_price,
				:unrealized_pnl_percent, :duration_days, :stop_loss_price, :target_price)
		`, activeRowFrom(run.ID, run.Active)); err != nil {
			return fmt.Errorf("sqlite insert active %s: %w", run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	w.log.Info("run saved",
		zap.String("run_id", run.ID),
		zap.String("symbol", run.Symbol),
		zap.Int("trades", len(run.Trades)),
		zap.Bool("active", run.Active != nil),
	)
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
