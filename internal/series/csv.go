package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dti-backtester/internal/model"
)

// ErrUnrecognizedFormat is returned when a CSV header matches neither the
// named nor the fixed-position convention.
var ErrUnrecognizedFormat = errors.New("unrecognized csv format: expected date, open, high, low, close columns")

// Format identifies a CSV header convention.
type Format int

const (
	FormatNamed Format = iota // columns located by header name
	FormatFixed               // date, open, high, low, close at columns 1..5
)

func (f Format) String() string {
	if f == FormatFixed {
		return "fixed"
	}
	return "named"
}

// FixedMinColumns is the smallest header accepted by the fixed-position format.
const FixedMinColumns = 6

// Layout maps logical columns to indices. -1 means absent.
type Layout struct {
	Format Format
	Date   int
	Open   int
	High   int
	Low    int
	Close  int
	Volume int
}

// DetectLayout inspects the header row. A header naming any of
// open/high/low/close/ltp selects the named format; "ltp" stands in for a
// missing "close". Otherwise a header of at least six columns selects the
// fixed-position format.
func DetectLayout(header []string) (Layout, error) {
	names := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(cleanCell(h))
		if _, dup := names[h]; !dup {
			names[h] = i
		}
	}
	col := func(name string) int {
		if i, ok := names[name]; ok {
			return i
		}
		return -1
	}

	named := false
	for _, n := range []string{"open", "high", "low", "close", "ltp"} {
		if col(n) >= 0 {
			named = true
			break
		}
	}

	switch {
	case named:
		l := Layout{
			Format: FormatNamed,
			Date:   col("date"),
			Open:   col("open"),
			High:   col("high"),
			Low:    col("low"),
			Close:  col("close"),
			Volume: col("volume"),
		}
		if l.Close < 0 {
			l.Close = col("ltp")
		}
		return l, nil
	case len(header) >= FixedMinColumns:
		l := Layout{Format: FormatFixed, Date: 1, Open: 2, High: 3, Low: 4, Close: 5, Volume: -1}
		if len(header) > 6 {
			l.Volume = 6
		}
		return l, nil
	}
	return Layout{}, fmt.Errorf("%w (header %q)", ErrUnrecognizedFormat, header)
}

// missing names the first required column the layout lacks.
func (l Layout) missing() string {
	for _, c := range []struct {
		name string
		idx  int
	}{{"date", l.Date}, {"open", l.Open}, {"high", l.High}, {"low", l.Low}, {"close", l.Close}} {
		if c.idx < 0 {
			return c.name
		}
	}
	return ""
}

// row extracts a RawRow from one record. Cells beyond the record length
// are left nil so the normalizer reports them as missing.
func (l Layout) row(line int, rec []string) RawRow {
	cell := func(i int) any {
		if i < 0 || i >= len(rec) {
			return nil
		}
		return rec[i]
	}
	return RawRow{
		Line:   line,
		Date:   cell(l.Date),
		Open:   cell(l.Open),
		High:   cell(l.High),
		Low:    cell(l.Low),
		Close:  cell(l.Close),
		Volume: cell(l.Volume),
	}
}

// NewCSVReader returns a csv.Reader over r that accepts ragged rows and
// stray quotes. Input is decoded as UTF-8 unless a UTF-16 byte-order mark
// says otherwise; a UTF-8 BOM is stripped.
func NewCSVReader(r io.Reader) *csv.Reader {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	cr := csv.NewReader(transform.NewReader(r, dec))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// ReadCSV reads a CSV stream into raw rows and the detected layout.
// When a named header lacks a required column, every data row is dropped
// later with a reason naming that column.
func ReadCSV(r io.Reader) ([]RawRow, Layout, error) {
	cr := NewCSVReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, Layout{}, fmt.Errorf("%w: empty input", ErrUnrecognizedFormat)
	}
	if err != nil {
		return nil, Layout{}, fmt.Errorf("read csv header: %w", err)
	}
	layout, err := DetectLayout(header)
	if err != nil {
		return nil, Layout{}, err
	}
	missing := layout.missing()

	var rows []RawRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, layout, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		row := layout.row(line, rec)
		row.Missing = missing
		rows = append(rows, row)
	}
	return rows, layout, nil
}

// ParseCSV reads and normalizes a CSV stream.
func ParseCSV(r io.Reader, opts Options) (model.Series, Report, error) {
	rows, _, err := ReadCSV(r)
	if err != nil {
		return model.Series{Symbol: opts.Symbol}, Report{}, err
	}
	return Normalize(rows, opts)
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
