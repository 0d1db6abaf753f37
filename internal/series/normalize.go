// Package series turns raw price rows from CSV, JSON or other adapters into
// a clean, strictly ascending model.Series.
//
// Rows that cannot be parsed are dropped and counted, never propagated as
// a failure. The only error Normalize returns is an InsufficientDataError
// when fewer rows than the caller's threshold survive.
package series

import (
	"sort"

	"dti-backtester/internal/model"
)

// Row thresholds used by the two call sites.
const (
	DefaultUploadMinRows = 30
	DefaultScanMinRows   = 5
)

// RawRow is one unparsed record. Field values may be strings, numbers,
// json.Number or nil when the source had no such column.
type RawRow struct {
	Line   int
	Date   any
	Open   any
	High   any
	Low    any
	Close  any
	Volume any

	// Missing names a required column the source could not locate.
	// Such a row is always dropped.
	Missing string
}

// Options controls normalization.
type Options struct {
	Symbol  string
	MinRows int // fewer surviving rows fail with InsufficientDataError
}

// UploadOptions returns the options used for manually uploaded files.
func UploadOptions(symbol string) Options {
	return Options{Symbol: symbol, MinRows: DefaultUploadMinRows}
}

// ScanOptions returns the options used by the batch scanner.
func ScanOptions(symbol string) Options {
	return Options{Symbol: symbol, MinRows: DefaultScanMinRows}
}

// Report accounts for every input row.
type Report struct {
	Total   int
	Kept    int
	Dropped int
	Errors  []*model.MalformedRowError
}

func (r *Report) drop(e *model.MalformedRowError) {
	r.Dropped++
	r.Errors = append(r.Errors, e)
}

// Normalize parses, filters, sorts and de-duplicates rows.
// The report is filled in even when the threshold check fails.
func Normalize(rows []RawRow, opts Options) (model.Series, Report, error) {
	rep := Report{Total: len(rows)}
	bars := make([]model.PriceBar, 0, len(rows))
	lines := make([]int, 0, len(rows))

	for i := range rows {
		bar, err := parseRow(&rows[i])
		if err != nil {
			rep.drop(err)
			continue
		}
		bars = append(bars, bar)
		lines = append(lines, rows[i].Line)
	}

	idx := make([]int, len(bars))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return bars[idx[a]].Date.Before(bars[idx[b]].Date)
	})

	out := make([]model.PriceBar, 0, len(bars))
	for _, i := range idx {
		if n := len(out); n > 0 && out[n-1].Date.Equal(bars[i].Date) {
			rep.drop(&model.MalformedRowError{Line: lines[i], Field: "date", Reason: "duplicate date " + bars[i].Day()})
			continue
		}
		out = append(out, bars[i])
	}
	rep.Kept = len(out)

	s := model.Series{Symbol: opts.Symbol, Bars: out}
	if len(out) < opts.MinRows {
		return s, rep, &model.InsufficientDataError{Op: "normalize " + opts.Symbol, Have: len(out), Need: opts.MinRows}
	}
	return s, rep, nil
}

func parseRow(r *RawRow) (model.PriceBar, *model.MalformedRowError) {
	var bar model.PriceBar
	bad := func(field string, err error) *model.MalformedRowError {
		return &model.MalformedRowError{Line: r.Line, Field: field, Reason: err.Error()}
	}

	if r.Missing != "" {
		return bar, &model.MalformedRowError{Line: r.Line, Field: r.Missing, Reason: "column not found in header"}
	}

	d, err := ParseDate(r.Date)
	if err != nil {
		return bar, bad("date", err)
	}
	bar.Date = d

	fields := []struct {
		name string
		raw  any
		dst  *float64
	}{
		{"open", r.Open, &bar.Open},
		{"high", r.High, &bar.High},
		{"low", r.Low, &bar.Low},
		{"close", r.Close, &bar.Close},
	}
	for _, f := range fields {
		v, err := ParseNumber(f.raw)
		if err != nil {
			return bar, bad(f.name, err)
		}
		*f.dst = v
	}

	// volume is optional; an unreadable value is treated as absent
	if v, err := ParseNumber(r.Volume); err == nil {
		bar.Volume = &v
	}
	return bar, nil
}
