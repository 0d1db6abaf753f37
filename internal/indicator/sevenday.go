package indicator

import "math"

// BlockSize is the number of trading days in one 7-day block. Blocks are
// counted from the first bar of the series, not calendar weeks.
const BlockSize = 7

// resampleBlocks folds high/low into non-overlapping blocks of size bars,
// taking max(high) and min(low) per block. A trailing partial block keeps
// whatever bars it has.
func resampleBlocks(high, low []float64, size int) (bh, bl []float64) {
	n := (len(high) + size - 1) / size
	bh = make([]float64, n)
	bl = make([]float64, n)
	for k := 0; k < n; k++ {
		start := k * size
		end := start + size
		if end > len(high) {
			end = len(high)
		}
		h, l := math.Inf(-1), math.Inf(1)
		for i := start; i < end; i++ {
			h = math.Max(h, high[i])
			l = math.Min(low[i], l)
		}
		bh[k], bl[k] = h, l
	}
	return bh, bl
}

// blockDTI runs the DTI over size-bar blocks and broadcasts each block's
// value back onto every daily index inside it.
func blockDTI(high, low []float64, r, s, size int) []float64 {
	bh, bl := resampleBlocks(high, low, size)
	blocks := dtiSeries(bh, bl, r, s)

	out := make([]float64, len(high))
	for i := range out {
		out[i] = blocks[i/size]
	}
	return out
}

// SevenDayDTI returns the 7-day block DTI aligned to the daily timeline.
func SevenDayDTI(high, low []float64, p Params) ([]float64, error) {
	if err := checkInput(high, low, p); err != nil {
		return nil, err
	}
	return blockDTI(high, low, p.R, p.S, BlockSize), nil
}
