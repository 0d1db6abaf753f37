package model

import "time"

// DateLayout is the calendar-day format used for storage keys and exports.
const DateLayout = "2006-01-02"

// PriceBar is one daily OHLC record. Dates are truncated to the calendar
// day in UTC. Volume is optional.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume *float64  `json:"volume,omitempty"`
}

// Day returns the bar date formatted as YYYY-MM-DD.
func (b *PriceBar) Day() string {
	return b.Date.Format(DateLayout)
}

// Series is a normalized per-symbol price history, strictly ascending by date.
type Series struct {
	Symbol string     `json:"symbol"`
	Bars   []PriceBar `json:"bars"`
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// Dates returns the bar dates in order.
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.Bars))
	for i := range s.Bars {
		out[i] = s.Bars[i].Date
	}
	return out
}

// Closes returns the close prices in order.
func (s *Series) Closes() []float64 {
	return s.column(func(b *PriceBar) float64 { return b.Close })
}

// Highs returns the high prices in order.
func (s *Series) Highs() []float64 {
	return s.column(func(b *PriceBar) float64 { return b.High })
}

// Lows returns the low prices in order.
func (s *Series) Lows() []float64 {
	return s.column(func(b *PriceBar) float64 { return b.Low })
}

func (s *Series) column(pick func(*PriceBar) float64) []float64 {
	out := make([]float64, len(s.Bars))
	for i := range s.Bars {
		out[i] = pick(&s.Bars[i])
	}
	return out
}
