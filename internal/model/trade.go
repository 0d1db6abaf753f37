package model

import "time"

// ExitReason records which rule closed a position.
type ExitReason string

const (
	ExitTarget    ExitReason = "target"
	ExitStopLoss  ExitReason = "stopLoss"
	ExitSignal    ExitReason = "signalExit"
	ExitEndOfData ExitReason = "endOfData" // only when the caller forces closure at the last bar
)

// Trade is a completed long position.
type Trade struct {
	EntryDate    time.Time  `json:"entryDate"`
	EntryPrice   float64    `json:"entryPrice"`
	ExitDate     time.Time  `json:"exitDate"`
	ExitPrice    float64    `json:"exitPrice"`
	ExitReason   ExitReason `json:"exitReason"`
	PnLPercent   float64    `json:"pnlPercent"`
	DurationDays int        `json:"durationDays"`
	EntryIndex   int        `json:"-"`
	ExitIndex    int        `json:"-"`
}

// IsWin reports whether the trade closed with a strictly positive return.
func (t *Trade) IsWin() bool { return t.PnLPercent > 0 }

// OpenPosition is the position still held when the series ends.
// It is never represented as a Trade with empty exit fields.
type OpenPosition struct {
	EntryDate            time.Time `json:"entryDate"`
	EntryPrice           float64   `json:"entryPrice"`
	EntryIndex           int       `json:"-"`
	LastDate             time.Time `json:"lastDate"`
	LastPrice            float64   `json:"lastPrice"`
	UnrealizedPnLPercent float64   `json:"unrealizedPnlPercent"`
	DurationDays         int       `json:"durationDays"`
	StopLossPrice        float64   `json:"stopLossPrice"`
	TargetPrice          float64   `json:"targetPrice"`
}

// PercentChange returns the percentage move from entry to exit.
func PercentChange(entry, exit float64) float64 {
	return (exit - entry) / entry * 100
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Round(24*time.Hour) / (24 * time.Hour))
}

// OutcomeKind classifies how a backtest left the last position.
type OutcomeKind int

const (
	OutcomeNone      OutcomeKind = iota // no trade was ever opened
	OutcomeCompleted                    // the last position was closed
	OutcomeActive                       // a position is still open
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCompleted:
		return "completed"
	case OutcomeActive:
		return "active"
	}
	return "none"
}

// Outcome is the last trade state of a run. Exactly one of Trade and
// Position is set, matching Kind; both are nil for OutcomeNone.
type Outcome struct {
	Kind     OutcomeKind
	Trade    *Trade
	Position *OpenPosition
}
