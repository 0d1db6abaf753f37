package model

// PerformanceMetrics summarizes a list of completed trades.
// WinRate is a fraction in [0,1]; all *Percent fields are percentages.
type PerformanceMetrics struct {
	TotalTrades        int     `json:"totalTrades"`
	WinCount           int     `json:"winCount"`
	LossCount          int     `json:"lossCount"`
	WinRate            float64 `json:"winRate"`
	AverageGainPercent float64 `json:"averageGainPercent"`
	AverageLossPercent float64 `json:"averageLossPercent"`
	TotalReturnPercent float64 `json:"totalReturnPercent"`

	BestTradePercent    float64 `json:"bestTradePercent"`
	WorstTradePercent   float64 `json:"worstTradePercent"`
	AverageDurationDays float64 `json:"averageDurationDays"`
	StdDevPercent       float64 `json:"stdDevPercent"`
	ProfitFactor        float64 `json:"profitFactor"`
}
