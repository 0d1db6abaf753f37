package model

// StrategyParams is the full, read-only parameter set of one DTI backtest.
// Percentages are expressed in percent (8 means 8%).
type StrategyParams struct {
	R int `json:"r"` // range EMA period
	S int `json:"s"` // smoothing EMA period
	U int `json:"u"` // signal-line EMA period

	TargetPercent    float64 `json:"targetPercent"`
	StopLossPercent  float64 `json:"stopLossPercent"`
	EntryThreshold   float64 `json:"entryThreshold"`
	ConfirmThreshold float64 `json:"confirmThreshold"`
	ForceCloseAtEnd  bool    `json:"forceCloseAtEnd"`
}
