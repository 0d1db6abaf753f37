// Package report exports trade logs and scan opportunities as CSV.
package report

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"dti-backtester/internal/model"
	"dti-backtester/internal/scanner"
)

// TradeRecord is one row of a trade log export.
type TradeRecord struct {
	Symbol       string  `csv:"symbol"`
	EntryDate    string  `csv:"entry_date"`
	EntryPrice   float64 `csv:"entry_price"`
	ExitDate     string  `csv:"exit_date"`
	ExitPrice    float64 `csv:"exit_price"`
	ExitReason   string  `csv:"exit_reason"`
	PnLPercent   float64 `csv:"pnl_percent"`
	DurationDays int     `csv:"duration_days"`
}

// OpportunityRecord is one row of an active-trade export.
type OpportunityRecord struct {
	Symbol               string  `csv:"symbol"`
	Name                 string  `csv:"name"`
	EntryDate            string  `csv:"entry_date"`
	EntryPrice           float64 `csv:"entry_price"`
	LastDate             string  `csv:"last_date"`
	LastPrice            float64 `csv:"last_price"`
	UnrealizedPnLPercent float64 `csv:"unrealized_pnl_percent"`
	DaysHeld             int     `csv:"days_held"`
	StopLossPrice        float64 `csv:"stop_loss_price"`
	TargetPrice          float64 `csv:"target_price"`
	WinRate              float64 `csv:"win_rate"`
	TotalTrades          int     `csv:"total_trades"`
	TotalReturnPercent   float64 `csv:"total_return_percent"`
}

// Trades converts a symbol's completed trades to export rows.
func Trades(symbol string, trades []model.Trade) []TradeRecord {
	out := make([]TradeRecord, 0, len(trades))
	for _, t := range trades {
		out = append(out, TradeRecord{
			Symbol:       symbol,
			EntryDate:    t.EntryDate.Format(model.DateLayout),
			EntryPrice:   round(t.EntryPrice),
			ExitDate:     t.ExitDate.Format(model.DateLayout),
			ExitPrice:    round(t.ExitPrice),
			ExitReason:   string(t.ExitReason),
			PnLPercent:   round(t.PnLPercent),
			DurationDays: t.DurationDays,
		})
	}
	return out
}

// Opportunities converts scan opportunities to export rows.
func Opportunities(ops []scanner.Opportunity) []OpportunityRecord {
	out := make([]OpportunityRecord, 0, len(ops))
	for _, o := range ops {
		p := o.Position
		out = append(out, OpportunityRecord{
			Symbol:               o.Symbol,
			Name:                 o.Name,
			EntryDate:            p.EntryDate.Format(model.DateLayout),
			EntryPrice:           round(p.EntryPrice),
			LastDate:             p.LastDate.Format(model.DateLayout),
			LastPrice:            round(p.LastPrice),
			UnrealizedPnLPercent: round(p.UnrealizedPnLPercent),
			DaysHeld:             p.DurationDays,
			StopLossPrice:        round(p.StopLossPrice),
			TargetPrice:          round(p.TargetPrice),
			WinRate:              round(o.WinRate),
			TotalTrades:          o.TotalTrades,
			TotalReturnPercent:   round(o.TotalReturnPercent),
		})
	}
	return out
}

// WriteTrades writes a trade log as CSV with a header row.
func WriteTrades(w io.Writer, symbol string, trades []model.Trade) error {
	recs := Trades(symbol, trades)
	if err := gocsv.Marshal(&recs, w); err != nil {
		return fmt.Errorf("write trades csv: %w", err)
	}
	return nil
}

// WriteOpportunities writes scan opportunities as CSV with a header row.
func WriteOpportunities(w io.Writer, ops []scanner.Opportunity) error {
	recs := Opportunities(ops)
	if err := gocsv.Marshal(&recs, w); err != nil {
		return fmt.Errorf("write opportunities csv: %w", err)
	}
	return nil
}

// round keeps four decimals for export.
func round(f float64) float64 {
	return decimal.NewFromFloat(f).Round(4).InexactFloat64()
}
