// Package backtest turns aligned price and DTI series into a trade log.
//
// The engine is a two-state machine (flat / in position) over long-only,
// single-position trades. It is a pure function of its inputs: no clock,
// no randomness, no shared state.
package backtest

import (
	"math"
	"time"

	"dti-backtester/internal/model"
)

// MinBars is the smallest series the engine accepts; a crossing needs a prior day.
const MinBars = 2

// Input holds the aligned per-day series the engine consumes.
type Input struct {
	Dates       []time.Time
	Closes      []float64
	DTI         []float64
	SevenDayDTI []float64
}

// Result is the backtest outcome: completed trades plus at most one open position.
type Result struct {
	Completed []model.Trade
	Active    *model.OpenPosition
}

// HasActive reports whether the series ended in position.
func (r *Result) HasActive() bool { return r.Active != nil }

type state int

const (
	stateFlat state = iota
	stateInPosition
)

type position struct {
	index int
	price float64
	stop  float64
	tgt   float64
}

// machine carries the mutable state of one Run call.
type machine struct {
	in     Input
	p      Params
	state  state
	pos    position
	trades []model.Trade
}

// Run executes the entry/exit rules over in.
//
// Entry (flat, day i): DTI[i-1] <= EntryThreshold < DTI[i] and
// SevenDayDTI[i] >= ConfirmThreshold, at a positive close. Entry price is
// the close of day i.
//
// Exit (in position, days after entry), first match wins:
// stop-loss (close <= entry*(1-stop%)), target (close >= entry*(1+target%)),
// signal (DTI[i] < EntryThreshold). Exit price is the close of day i.
// At most one transition happens per day.
func Run(in Input, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := checkAligned(in); err != nil {
		return Result{}, err
	}
	if len(in.Dates) < MinBars {
		return Result{}, &model.InsufficientDataError{Op: "backtest", Have: len(in.Dates), Need: MinBars}
	}

	m := &machine{in: in, p: p, trades: []model.Trade{}}
	for i := 1; i < len(in.Dates); i++ {
		m.step(i)
	}
	return m.finish(), nil
}

func checkAligned(in Input) error {
	n := len(in.Dates)
	if len(in.Closes) == n && len(in.DTI) == n && len(in.SevenDayDTI) == n {
		return nil
	}
	return &model.MisalignedSeriesError{Lengths: map[string]int{
		"dates":       n,
		"closes":      len(in.Closes),
		"dti":         len(in.DTI),
		"sevenDayDti": len(in.SevenDayDTI),
	}}
}

func (m *machine) step(i int) {
	switch m.state {
	case stateFlat:
		if m.entrySignal(i) {
			m.open(i)
		}
	case stateInPosition:
		if reason, ok := m.exitSignal(i); ok {
			m.close(i, reason)
		}
	}
}

// entrySignal: NaN on either side of the comparison never fires.
func (m *machine) entrySignal(i int) bool {
	prev, cur, week := m.in.DTI[i-1], m.in.DTI[i], m.in.SevenDayDTI[i]
	if math.IsNaN(prev) || math.IsNaN(cur) || math.IsNaN(week) {
		return false
	}
	crossed := prev <= m.p.EntryThreshold && cur > m.p.EntryThreshold
	confirmed := week >= m.p.ConfirmThreshold
	return crossed && confirmed && m.in.Closes[i] > 0
}

func (m *machine) exitSignal(i int) (model.ExitReason, bool) {
	c := m.in.Closes[i]
	if !(c > 0) {
		return "", false
	}
	switch {
	case c <= m.pos.stop:
		return model.ExitStopLoss, true
	case c >= m.pos.tgt:
		return model.ExitTarget, true
	case m.in.DTI[i] < m.p.EntryThreshold:
		return model.ExitSignal, true
	}
	return "", false
}

func (m *machine) open(i int) {
	price := m.in.Closes[i]
	m.pos = position{
		index: i,
		price: price,
		stop:  m.p.stopPrice(price),
		tgt:   m.p.targetPrice(price),
	}
	m.state = stateInPosition
}

func (m *machine) close(i int, reason model.ExitReason) {
	entryDate, exitDate := m.in.Dates[m.pos.index], m.in.Dates[i]
	exit := m.in.Closes[i]
	m.trades = append(m.trades, model.Trade{
		EntryDate:    entryDate,
		EntryPrice:   m.pos.price,
		ExitDate:     exitDate,
		ExitPrice:    exit,
		ExitReason:   reason,
		PnLPercent:   model.PercentChange(m.pos.price, exit),
		DurationDays: model.DaysBetween(entryDate, exitDate),
		EntryIndex:   m.pos.index,
		ExitIndex:    i,
	})
	m.state = stateFlat
	m.pos = position{}
}

func (m *machine) finish() Result {
	if m.state == stateFlat {
		return Result{Completed: m.trades}
	}
	last := len(m.in.Dates) - 1
	if m.p.ForceCloseAtEnd {
		m.close(last, model.ExitEndOfData)
		return Result{Completed: m.trades}
	}
	entryDate := m.in.Dates[m.pos.index]
	return Result{
		Completed: m.trades,
		Active: &model.OpenPosition{
			EntryDate:            entryDate,
			EntryPrice:           m.pos.price,
			EntryIndex:           m.pos.index,
			LastDate:             m.in.Dates[last],
			LastPrice:            m.in.Closes[last],
			UnrealizedPnLPercent: model.PercentChange(m.pos.price, m.in.Closes[last]),
			DurationDays:         model.DaysBetween(entryDate, m.in.Dates[last]),
			StopLossPrice:        m.pos.stop,
			TargetPrice:          m.pos.tgt,
		},
	}
}

// InputFrom builds an Input from a normalized series and its indicator output.
func InputFrom(s model.Series, dti, sevenDay []float64) Input {
	return Input{
		Dates:       s.Dates(),
		Closes:      s.Closes(),
		DTI:         dti,
		SevenDayDTI: sevenDay,
	}
}
