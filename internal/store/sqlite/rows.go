package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"dti-backtester/internal/model"
)

// Row types mirror the tables; days are stored as YYYY-MM-DD text.

type barRow struct {
	Symbol string          `db:"symbol"`
	Day    string          `db:"day"`
	Open   float64         `db:"open"`
	High   float64         `db:"high"`
	Low    float64         `db:"low"`
	Close  float64         `db:"close"`
	Volume sql.NullFloat64 `db:"volume"`
}

func barRowFrom(symbol string, b *model.PriceBar) barRow {
	r := barRow{Symbol: symbol, Day: b.Day(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
	if b.Volume != nil {
		r.Volume = sql.NullFloat64{Float64: *b.Volume, Valid: true}
	}
	return r
}

func (r *barRow) bar() (model.PriceBar, error) {
	d, err := parseDay(r.Day)
	if err != nil {
		return model.PriceBar{}, err
	}
	b := model.PriceBar{Date: d, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close}
	if r.Volume.Valid {
		v := r.Volume.Float64
		b.Volume = &v
	}
	return b, nil
}

type runRow struct {
	ID          string  `db:"id"`
	Symbol      string  `db:"symbol"`
	CreatedAt   int64   `db:"created_at"`
	Params      string  `db:"params"`
	Bars        int     `db:"bars"`
	DroppedRows int     `db:"dropped_rows"`
	TotalTrades int     `db:"total_trades"`
	WinRate     float64 `db:"win_rate"`
	TotalReturn float64 `db:"total_return"`
	Metrics     string  `db:"metrics"`
}

type tradeRow struct {
	RunID        string  `db:"run_id"`
	Seq          int     `db:"seq"`
	EntryDay     string  `db:"entry_day"`
	EntryPrice   float64 `db:"entry_price"`
	ExitDay      string  `db:"exit_day"`
	ExitPrice    float64 `db:"exit_price"`
	ExitReason   string  `db:"exit_reason"`
	PnLPercent   float64 `db:"pnl_percent"`
	DurationDays int     `db:"duration_days"`
	EntryIndex   int     `db:"entry_index"`
	ExitIndex    int     `db:"exit_index"`
}

func tradeRowFrom(runID string, seq int, t *model.Trade) tradeRow {
	return tradeRow{
		RunID:        runID,
		Seq:          seq,
		EntryDay:     t.EntryDate.Format(model.DateLayout),
		EntryPrice:   t.EntryPrice,
		ExitDay:      t.ExitDate.Format(model.DateLayout),
		ExitPrice:    t.ExitPrice,
		ExitReason:   string(t.ExitReason),
		PnLPercent:   t.PnLPercent,
		DurationDays: t.DurationDays,
		EntryIndex:   t.EntryIndex,
		ExitIndex:    t.ExitIndex,
	}
}

func (r *tradeRow) trade() (model.Trade, error) {
	entry, err := parseDay(r.EntryDay)
	if err != nil {
		return model.Trade{}, err
	}
	exit, err := parseDay(r.ExitDay)
	if err != nil {
		return model.Trade{}, err
	}
	return model.Trade{
		EntryDate:    entry,
		EntryPrice:   r.EntryPrice,
		ExitDate:     exit,
		ExitPrice:    r.ExitPrice,
		ExitReason:   model.ExitReason(r.ExitReason),
		PnLPercent:   r.PnLPercent,
		DurationDays: r.DurationDays,
		EntryIndex:   r.EntryIndex,
		ExitIndex:    r.ExitIndex,
	}, nil
}

type activeRow struct {
	RunID                string  `db:"run_id"`
	EntryDay             string  `db:"entry_day"`
	EntryPrice           float64 `db:"entry_price"`
	EntryIndex           int     `db:"entry_index"`
	LastDay              string  `db:"last_day"`
	LastPrice            float64 `db:"last_price"`
	UnrealizedPnLPercent float64 `db:"unrealized_pnl_percent"`
	DurationDays         int     `db:"duration_days"`
	StopLossPrice        float64 `db:"stop_loss_price"`
	TargetPrice          float64 `db:"target_price"`
}

func activeRowFrom(runID string, p *model.OpenPosition) activeRow {
	return activeRow{
		RunID:                runID,
		EntryDay:             p.EntryDate.Format(model.DateLayout),
		EntryPrice:           p.EntryPrice,
		EntryIndex:           p.EntryIndex,
		LastDay:              p.LastDate.Format(model.DateLayout),
		LastPrice:            p.LastPrice,
		UnrealizedPnLPercent: p.UnrealizedPnLPercent,
		DurationDays:         p.DurationDays,
		StopLossPrice:        p.StopLossPrice,
		TargetPrice:          p.TargetPrice,
	}
}

func (r *activeRow) position() (model.OpenPosition, error) {
	entry, err := parseDay(r.EntryDay)
	if err != nil {
		return model.OpenPosition{}, err
	}
	last, err := parseDay(r.LastDay)
	if err != nil {
		return model.OpenPosition{}, err
	}
	return model.OpenPosition{
		EntryDate:            entry,
		EntryPrice:           r.EntryPrice,
		EntryIndex:           r.EntryIndex,
		LastDate:             last,
		LastPrice:            r.LastPrice,
		UnrealizedPnLPercent: r.UnrealizedPnLPercent,
		DurationDays:         r.DurationDays,
		StopLossPrice:        r.StopLossPrice,
		TargetPrice:          r.TargetPrice,
	}, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: bad stored day %q: %w", s, err)
	}
	return t, nil
}
