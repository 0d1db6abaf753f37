// Package indicator computes the DTI (Directional Trend Index) oscillator.
//
// All functions are pure: they take aligned float64 slices and return fresh
// slices of the same length. A value of NaN marks an index where an indicator
// is not yet available; with first-value EMA seeding every index of a
// finite input is defined.
package indicator

import "dti-backtester/internal/model"

// Params holds the three DTI periods.
type Params struct {
	R int // range EMA period
	S int // smoothing EMA period
	U int // signal-line EMA period
}

// ParamsFrom extracts the indicator periods from a full strategy parameter set.
func ParamsFrom(p model.StrategyParams) Params {
	return Params{R: p.R, S: p.S, U: p.U}
}

// Validate rejects periods below 1.
func (p Params) Validate() error {
	for _, f := range []struct {
		name string
		v    int
	}{{"r", p.R}, {"s", p.S}, {"u", p.U}} {
		if f.v < 1 {
			return &model.InvalidParameterError{Name: f.name, Value: f.v, Reason: "period must be >= 1"}
		}
	}
	return nil
}

// Result is the full indicator output for one series, aligned 1:1 with it.
type Result struct {
	DTI         []float64 `json:"dti"`
	Signal      []float64 `json:"signal"`
	SevenDayDTI []float64 `json:"sevenDayDti"`
}

// Len returns the aligned length of the result.
func (r *Result) Len() int { return len(r.DTI) }

// Compute runs the daily DTI, its signal line and the 7-day block DTI over bars.
func Compute(bars []model.PriceBar, p Params) (Result, error) {
	s := model.Series{Bars: bars}
	return ComputeHL(s.Highs(), s.Lows(), p)
}

// ComputeHL is Compute over raw high/low slices.
func ComputeHL(high, low []float64, p Params) (Result, error) {
	if err := checkInput(high, low, p); err != nil {
		return Result{}, err
	}

	dti := dtiSeries(high, low, p.R, p.S)
	weekly := blockDTI(high, low, p.R, p.S, BlockSize)

	return Result{
		DTI:         dti,
		Signal:      EMASeries(dti, p.U),
		SevenDayDTI: weekly,
	}, nil
}

func checkInput(high, low []float64, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(high) == 0 {
		return &model.InvalidParameterError{Name: "high/low", Value: 0, Reason: "series is empty"}
	}
	if len(high) != len(low) {
		return &model.MisalignedSeriesError{Lengths: map[string]int{"high": len(high), "low": len(low)}}
	}
	return nil
}
