package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"dti-backtester/internal/model"
)

// ErrNotFound is returned when a symbol has no stored bars.
var ErrNotFound = errors.New("sqlite: not found")

// Reader provides read-only access to stored series and runs.
type Reader struct {
	db *sqlx.DB
}

var (
	_ model.SeriesReader = (*Reader)(nil)
	_ model.RunReader    = (*Reader)(nil)
)

// NewReader opens a SQLite connection for reading. The schema must
// already exist (see New).
func NewReader(dbPath string, log *zap.Logger) (*Reader, error) {
	db, err := open(dbPath, 2)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	if log != nil {
		log.Debug("sqlite reader opened", zap.String("path", dbPath))
	}
	return &Reader{db: db}, nil
}

// ReadSeries loads all bars of symbol ordered by day ascending.
func (r *Reader) ReadSeries(ctx context.Context, symbol string) (model.Series, error) {
	var rows []barRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT symbol, day, open, high, low, close, volume
		FROM price_bars
		WHERE symbol = ?
		ORDER BY day ASC
	`, symbol)
	if err != nil {
		return model.Series{}, fmt.Errorf("sqlite query price_bars: %w", err)
	}
	if len(rows) == 0 {
		return model.Series{}, fmt.Errorf("series %s: %w", symbol, ErrNotFound)
	}

	s := model.Series{Symbol: symbol, Bars: make([]model.PriceBar, 0, len(rows))}
	for i := range rows {
		b, err := rows[i].bar()
		if err != nil {
			return model.Series{}, err
		}
		s.Bars = append(s.Bars, b)
	}
	return s, nil
}

// LatestRun returns the most recently saved run for symbol, or nil if
// there is none.
func (r *Reader) LatestRun(ctx context.Context, symbol string) (*model.BacktestRun, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, symbol, created_at, params, bars, dropped_rows, total_trades, win_rate, total_return, metrics
		FROM backtest_runs
		WHERE symbol = ?
		ORDER BY rowid DESC
		LIMIT 1
	`, symbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite query backtest_runs: %w", err)
	}

	run := model.BacktestRun{
		ID:          row.ID,
		Symbol:      row.Symbol,
		CreatedAt:   time.UnixMilli(row.CreatedAt).UTC(),
		Bars:        row.Bars,
		DroppedRows: row.DroppedRows,
		Trades:      []model.Trade{},
	}
	if err := json.Unmarshal([]byte(row.Params), &run.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Metrics), &run.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}

	var trades []tradeRow
	if err := r.db.SelectContext(ctx, &trades, `SELECT * FROM trades WHERE run_id = ? ORDER BY seq ASC`, row.ID); err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	for i := range trades {
		t, err := trades[i].trade()
		if err != nil {
			return nil, err
		}
		run.Trades = append(run.Trades, t)
	}

	var active activeRow
	err = r.db.GetContext(ctx, &active, `SELECT * FROM active_positions WHERE run_id = ?`, row.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("sqlite query active_positions: %w", err)
	default:
		p, err := active.position()
		if err != nil {
			return nil, err
		}
		run.Active = &p
	}
	return &run, nil
}

// ActivePositions lists the open position of every symbol whose latest
// run ended in position, by win rate descending then symbol.
func (r *Reader) ActivePositions(ctx context.Context) ([]model.ActiveSummary, error) {
	type joined struct {
		activeRow
		Symbol      string  `db:"symbol"`
		WinRate     float64 `db:"win_rate"`
		TotalTrades int     `db:"total_trades"`
		TotalReturn float64 `db:"total_return"`
	}
	var rows []joined
	err := r.db.SelectContext(ctx, &rows, `
		SELECT a.*, b.symbol, b.win_rate, b.total_trades, b.total_return
		FROM active_positions a
		JOIN backtest_runs b ON b.id = a.run_id
		WHERE b.rowid = (SELECT MAX(rowid) FROM backtest_runs l WHERE l.symbol = b.symbol)
		ORDER BY b.win_rate DESC, b.symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query active positions: %w", err)
	}

	out := make([]model.ActiveSummary, 0, len(rows))
	for i := range rows {
		p, err := rows[i].position()
		if err != nil {
			return nil, err
		}
		out = append(out, model.ActiveSummary{
			RunID:    rows[i].RunID,
			Symbol:   rows[i].Symbol,
			Position: p,
			WinRate:  rows[i].WinRate,
			Trades:   rows[i].TotalTrades,

			TotalReturnPercent: rows[i].TotalReturn,
		})
	}
	return out, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
