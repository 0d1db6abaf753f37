// Package performance summarizes a completed trade log.
package performance

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dti-backtester/internal/model"
)

// MaxProfitFactor caps the profit factor when there are gains and no losses.
const MaxProfitFactor = 999

// Compute derives PerformanceMetrics from completed trades only.
// An empty input yields the zero value.
func Compute(trades []model.Trade) model.PerformanceMetrics {
	var m model.PerformanceMetrics
	if len(trades) == 0 {
		return m
	}

	pnl := make([]float64, len(trades))
	durations := make([]float64, len(trades))
	var gains, losses []float64
	growth := 1.0
	for i := range trades {
		p := trades[i].PnLPercent
		pnl[i] = p
		durations[i] = float64(trades[i].DurationDays)
		if trades[i].IsWin() {
			gains = append(gains, p)
		} else {
			losses = append(losses, p)
		}
		growth *= 1 + p/100
	}

	m.TotalTrades = len(trades)
	m.WinCount = len(gains)
	m.LossCount = len(losses)
	m.WinRate = float64(m.WinCount) / float64(m.TotalTrades)
	m.AverageGainPercent = mean(gains)
	m.AverageLossPercent = mean(losses)
	m.TotalReturnPercent = (growth - 1) * 100

	m.BestTradePercent = floats.Max(pnl)
	m.WorstTradePercent = floats.Min(pnl)
	m.AverageDurationDays = stat.Mean(durations, nil)
	if len(pnl) > 1 {
		m.StdDevPercent = stat.StdDev(pnl, nil)
	}
	m.ProfitFactor = profitFactor(floats.Sum(gains), floats.Sum(losses))
	return m
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// profitFactor is gross gain over gross loss. lossSum is <= 0.
func profitFactor(gainSum, lossSum float64) float64 {
	switch {
	case lossSum == 0 && gainSum > 0:
		return MaxProfitFactor
	case lossSum == 0:
		return 0
	}
	return math.Min(gainSum/math.Abs(lossSum), MaxProfitFactor)
}
