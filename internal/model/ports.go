package model

import "context"

// ── Storage Port Interfaces ──
// Implemented by internal/store/sqlite; consumed by the cmd layer and scanner.

// SeriesWriter persists normalized price series.
type SeriesWriter interface {
	SaveSeries(ctx context.Context, s Series) error
}

// SeriesReader loads a previously persisted series.
type SeriesReader interface {
	ReadSeries(ctx context.Context, symbol string) (Series, error)
}

// RunWriter persists completed backtest runs.
type RunWriter interface {
	SaveRun(ctx context.Context, run BacktestRun) error
}

// RunReader reads persisted backtest runs.
type RunReader interface {
	LatestRun(ctx context.Context, symbol string) (*BacktestRun, error)
	ActivePositions(ctx context.Context) ([]ActiveSummary, error)
}

// ActiveSummary pairs an open position with the run that produced it.
type ActiveSummary struct {
	RunID    string       `json:"runId"`
	Symbol   string       `json:"symbol"`
	Position OpenPosition `json:"position"`
	WinRate  float64      `json:"winRate"`
	Trades   int          `json:"trades"`

	TotalReturnPercent float64 `json:"totalReturnPercent"`
}
