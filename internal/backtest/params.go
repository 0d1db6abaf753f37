package backtest

import (
	"math"

	"dti-backtester/internal/model"
)

// Params configures the entry/exit rules. Percentages are in percent.
type Params struct {
	TargetPercent    float64
	StopLossPercent  float64
	EntryThreshold   float64 // daily DTI must cross above this to enter
	ConfirmThreshold float64 // 7-day DTI must be at or above this on the entry day
	ForceCloseAtEnd  bool    // close an open position at the last bar with ExitEndOfData
}

// ParamsFrom extracts the backtest rules from a full strategy parameter set.
func ParamsFrom(p model.StrategyParams) Params {
	return Params{
		TargetPercent:    p.TargetPercent,
		StopLossPercent:  p.StopLossPercent,
		EntryThreshold:   p.EntryThreshold,
		ConfirmThreshold: p.ConfirmThreshold,
		ForceCloseAtEnd:  p.ForceCloseAtEnd,
	}
}

// Validate rejects non-positive percentages, a stop-loss of 100% or more
// and non-finite thresholds.
func (p Params) Validate() error {
	if !(p.TargetPercent > 0) || math.IsInf(p.TargetPercent, 0) {
		return &model.InvalidParameterError{Name: "targetPercent", Value: p.TargetPercent, Reason: "must be a positive percentage"}
	}
	if !(p.StopLossPercent > 0) || p.StopLossPercent >= 100 {
		return &model.InvalidParameterError{Name: "stopLossPercent", Value: p.StopLossPercent, Reason: "must be in (0, 100)"}
	}
	if math.IsNaN(p.EntryThreshold) || math.IsInf(p.EntryThreshold, 0) {
		return &model.InvalidParameterError{Name: "entryThreshold", Value: p.EntryThreshold, Reason: "must be finite"}
	}
	if math.IsNaN(p.ConfirmThreshold) || math.IsInf(p.ConfirmThreshold, 0) {
		return &model.InvalidParameterError{Name: "confirmThreshold", Value: p.ConfirmThreshold, Reason: "must be finite"}
	}
	return nil
}

func (p Params) stopPrice(entry float64) float64 {
	return entry * (1 - p.StopLossPercent/100)
}

func (p Params) targetPrice(entry float64) float64 {
	return entry * (1 + p.TargetPercent/100)
}
