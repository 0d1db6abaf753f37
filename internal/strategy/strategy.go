// Package strategy runs the DTI pipeline for one symbol: indicators,
// backtest and performance metrics over a normalized series.
package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"dti-backtester/internal/backtest"
	"dti-backtester/internal/indicator"
	"dti-backtester/internal/model"
	"dti-backtester/internal/performance"
)

// Name identifies the strategy in persisted runs and logs.
const Name = "dti"

// Analysis is the full result of one symbol's backtest.
type Analysis struct {
	Symbol     string
	Params     model.StrategyParams
	Series     model.Series
	Indicators indicator.Result
	Completed  []model.Trade
	Active     *model.OpenPosition
	Metrics    model.PerformanceMetrics
}

// Validate checks every strategy parameter before any computation runs.
func Validate(p model.StrategyParams) error {
	if err := indicator.ParamsFrom(p).Validate(); err != nil {
		return err
	}
	return backtest.ParamsFrom(p).Validate()
}

// Analyze computes indicators, runs the backtest and summarizes completed
// trades. Parameter and alignment errors are returned untouched.
func Analyze(symbol string, s model.Series, p model.StrategyParams) (Analysis, error) {
	if err := Validate(p); err != nil {
		return Analysis{}, err
	}
	if s.Len() < backtest.MinBars {
		return Analysis{}, &model.InsufficientDataError{Op: "analyze " + symbol, Have: s.Len(), Need: backtest.MinBars}
	}

	ind, err := indicator.Compute(s.Bars, indicator.ParamsFrom(p))
	if err != nil {
		return Analysis{}, fmt.Errorf("indicators %s: %w", symbol, err)
	}
	res, err := backtest.Run(backtest.InputFrom(s, ind.DTI, ind.SevenDayDTI), backtest.ParamsFrom(p))
	if err != nil {
		return Analysis{}, fmt.Errorf("backtest %s: %w", symbol, err)
	}

	return Analysis{
		Symbol:     symbol,
		Params:     p,
		Series:     s,
		Indicators: ind,
		Completed:  res.Completed,
		Active:     res.Active,
		Metrics:    performance.Compute(res.Completed),
	}, nil
}

// Outcome reports how the run ended.
func (a *Analysis) Outcome() model.Outcome {
	switch {
	case a.Active != nil:
		return model.Outcome{Kind: model.OutcomeActive, Position: a.Active}
	case len(a.Completed) > 0:
		return model.Outcome{Kind: model.OutcomeCompleted, Trade: &a.Completed[len(a.Completed)-1]}
	}
	return model.Outcome{Kind: model.OutcomeNone}
}

// ToRun converts the analysis into a persistable run with a fresh id.
func (a *Analysis) ToRun(dropped int, now time.Time) model.BacktestRun {
	return model.BacktestRun{
		ID:          uuid.NewString(),
		Symbol:      a.Symbol,
		CreatedAt:   now.UTC(),
		Params:      a.Params,
		Bars:        a.Series.Len(),
		DroppedRows: dropped,
		Trades:      a.Completed,
		Active:      a.Active,
		Metrics:     a.Metrics,
	}
}
