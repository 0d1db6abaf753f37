package indicator

// directionalMoves splits day-over-day high/low moves into the positive and
// negative directional components. Index 0 has no prior day and is zero.
//
// up[i] is the upward high move when it is positive and larger than the
// downward low move; down[i] is the symmetric downward low move.
func directionalMoves(high, low []float64) (up, down []float64) {
	n := len(high)
	up = make([]float64, n)
	down = make([]float64, n)
	for i := 1; i < n; i++ {
		highMove := high[i] - high[i-1]
		lowMove := low[i-1] - low[i]
		if highMove > 0 && highMove > lowMove {
			up[i] = highMove
		}
		if lowMove > 0 && lowMove > highMove {
			down[i] = lowMove
		}
	}
	return up, down
}

// dtiSeries computes 100*(P-N)/(P+N) where P and N are the double-smoothed
// (EMA r, then EMA s) directional components. A zero denominator yields 0.
func dtiSeries(high, low []float64, r, s int) []float64 {
	up, down := directionalMoves(high, low)
	pos := EMASeries(EMASeries(up, r), s)
	neg := EMASeries(EMASeries(down, r), s)

	out := make([]float64, len(high))
	for i := range out {
		den := pos[i] + neg[i]
		if den == 0 {
			out[i] = 0
			continue
		}
		out[i] = 100 * (pos[i] - neg[i]) / den
	}
	return out
}

// DTI returns the daily DTI series for high/low.
func DTI(high, low []float64, p Params) ([]float64, error) {
	if err := checkInput(high, low, p); err != nil {
		return nil, err
	}
	return dtiSeries(high, low, p.R, p.S), nil
}
