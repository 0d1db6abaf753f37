package model

import "time"

// BacktestRun is the persisted record of one symbol's backtest.
type BacktestRun struct {
	ID          string             `json:"id"`
	Symbol      string             `json:"symbol"`
	CreatedAt   time.Time          `json:"createdAt"`
	Params      StrategyParams     `json:"params"`
	Bars        int                `json:"bars"`
	DroppedRows int                `json:"droppedRows"`
	Trades      []Trade            `json:"trades"`
	Active      *OpenPosition      `json:"active,omitempty"`
	Metrics     PerformanceMetrics `json:"metrics"`
}
