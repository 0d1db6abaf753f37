package indicator

import "math"

// EMA calculates an Exponential Moving Average.
// The first value it receives becomes the seed; there is no SMA warm-up.
// O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// Update feeds the next value and returns the new average.
func (e *EMA) Update(v float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = v
		return e.current
	}
	// EMA = (value * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
	return e.current
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }

// EMASeries applies an EMA of the given period over values.
// Leading NaNs stay NaN; the EMA seeds at the first defined index. A NaN
// after the seed carries the previous average forward.
func EMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	ema := NewEMA(period)
	for i, v := range values {
		switch {
		case !math.IsNaN(v):
			out[i] = ema.Update(v)
		case ema.Ready():
			out[i] = ema.Value()
		default:
			out[i] = math.NaN()
		}
	}
	return out
}
