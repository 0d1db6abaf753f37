package series

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dti-backtester/internal/model"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// csvRows renders n daily rows under a named header. closeAt may override
// the close cell of selected rows.
func csvRows(n int, closeAt map[int]string) string {
	var b strings.Builder
	b.WriteString("Date,Open,High,Low,Close,Volume\n")
	for i := 0; i < n; i++ {
		c := fmt.Sprintf("%.2f", 100+float64(i))
		if v, ok := closeAt[i]; ok {
			c = v
		}
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%s,%d\n",
			start.AddDate(0, 0, i).Format("2006-01-02"), 100+float64(i), 101+float64(i), 99+float64(i), c, 1000+i)
	}
	return b.String()
}

// ────────────────────────────────────────────────────────────
// CSV
// ────────────────────────────────────────────────────────────

func TestParseCSV_DropsMalformedRows(t *testing.T) {
	in := csvRows(35, map[int]string{4: "n/a", 17: "", 30: "abc"})

	s, rep, err := ParseCSV(strings.NewReader(in), UploadOptions("TEST"))
	require.NoError(t, err)

	assert.Equal(t, "TEST", s.Symbol)
	assert.Equal(t, 32, s.Len())
	assert.Equal(t, 35, rep.Total)
	assert.Equal(t, 32, rep.Kept)
	assert.Equal(t, 3, rep.Dropped)
	require.Len(t, rep.Errors, 3)
	for _, e := range rep.Errors {
		assert.Equal(t, "close", e.Field)
		assert.True(t, errors.Is(e, model.ErrMalformedRow))
	}
	// header is line 1, row i sits on line i+2
	assert.Equal(t, 6, rep.Errors[0].Line)
	assert.Equal(t, 19, rep.Errors[1].Line)
	assert.Equal(t, 32, rep.Errors[2].Line)
}

func TestParseCSV_Threshold(t *testing.T) {
	in := csvRows(20, nil)

	_, rep, err := ParseCSV(strings.NewReader(in), UploadOptions("X"))
	var ide *model.InsufficientDataError
	require.True(t, errors.As(err, &ide))
	assert.Equal(t, 20, ide.Have)
	assert.Equal(t, DefaultUploadMinRows, ide.Need)
	assert.Equal(t, 20, rep.Kept)

	s, _, err := ParseCSV(strings.NewReader(in), ScanOptions("X"))
	require.NoError(t, err)
	assert.Equal(t, 20, s.Len())

	_, _, err = ParseCSV(strings.NewReader(csvRows(4, nil)), ScanOptions("X"))
	assert.True(t, errors.Is(err, model.ErrInsufficientData))
}

func TestParseCSV_SortsAndDeduplicates(t *testing.T) {
	in := "date,open,high,low,close\n" +
		"2024-01-03,3,3,3,3\n" +
		"2024-01-01,1,1,1,1\n" +
		"2024-01-02,2,2,2,2\n" +
		"2024-01-01,9,9,9,9\n"

	s, rep, err := ParseCSV(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{1, 2, 3}, s.Closes())
	assert.Equal(t, 1, rep.Dropped)
	assert.Equal(t, 5, rep.Errors[0].Line)
	assert.Equal(t, "date", rep.Errors[0].Field)
	assert.Contains(t, rep.Errors[0].Reason, "duplicate")

	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Bars[i-1].Date.Before(s.Bars[i].Date))
	}
}

func TestParseCSV_FixedPosition(t *testing.T) {
	in := "sym,day,o,h,l,c,v\n" +
		"AAA,2024-01-02,10,11,9,10.5,500\n" +
		"AAA,2024-01-03,10.5,12,10,11.5,\n"

	s, rep, err := ParseCSV(strings.NewReader(in), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Dropped)
	require.Equal(t, 2, s.Len())

	b := s.Bars[0]
	assert.Equal(t, "2024-01-02", b.Day())
	assert.Equal(t, 10.0, b.Open)
	assert.Equal(t, 11.0, b.High)
	assert.Equal(t, 9.0, b.Low)
	assert.Equal(t, 10.5, b.Close)
	require.NotNil(t, b.Volume)
	assert.Equal(t, 500.0, *b.Volume)
	assert.Nil(t, s.Bars[1].Volume)
}

func TestParseCSV_ShortRowIsMalformed(t *testing.T) {
	in := "sym,day,o,h,l,c\n" +
		"AAA,2024-01-02,10,11,9,10.5\n" +
		"AAA,2024-01-03,10.5,12\n"

	s, rep, err := ParseCSV(strings.NewReader(in), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	require.Equal(t, 1, rep.Dropped)
	assert.Equal(t, "low", rep.Errors[0].Field)
}

func TestParseCSV_LTPAlias(t *testing.T) {
	in := "DATE,OPEN,HIGH,LOW,LTP\n2024-01-02,1,2,0.5,1.5\n"
	s, _, err := ParseCSV(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 1.5, s.Bars[0].Close)
}

func TestParseCSV_MissingNamedColumn(t *testing.T) {
	var b strings.Builder
	b.WriteString("date,open,high,close\n")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "%s,1,2,1.5\n", start.AddDate(0, 0, i).Format("2006-01-02"))
	}

	_, rep, err := ParseCSV(strings.NewReader(b.String()), UploadOptions("X"))
	assert.True(t, errors.Is(err, model.ErrInsufficientData))
	assert.Equal(t, 40, rep.Dropped)
	assert.Equal(t, "low", rep.Errors[0].Field)
}

func TestParseCSV_UnrecognizedHeader(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("a,b,c\n1,2,3\n"), Options{})
	assert.True(t, errors.Is(err, ErrUnrecognizedFormat))

	_, _, err = ParseCSV(strings.NewReader(""), Options{})
	assert.True(t, errors.Is(err, ErrUnrecognizedFormat))
}

func TestParseCSV_ThousandsSeparators(t *testing.T) {
	in := "Date,Open,High,Low,Close\n" +
		`2024-01-02,"1,234.50","1,240.00","1,200.25","1,230.75"` + "\n"
	s, _, err := ParseCSV(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 1234.5, s.Bars[0].Open)
	assert.Equal(t, 1230.75, s.Bars[0].Close)
}

func TestParseCSV_Encodings(t *testing.T) {
	in := csvRows(6, nil)

	utf16, _, err := transform.String(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder(), in)
	require.NoError(t, err)
	s, _, err := ParseCSV(strings.NewReader(utf16), ScanOptions("U16"))
	require.NoError(t, err)
	assert.Equal(t, 6, s.Len())

	s, _, err = ParseCSV(strings.NewReader("\ufeff"+in), ScanOptions("BOM"))
	require.NoError(t, err)
	assert.Equal(t, 6, s.Len())
}

func TestDetectLayout(t *testing.T) {
	l, err := DetectLayout([]string{" Date ", "Close", "Open", "High", "Low", "Volume"})
	require.NoError(t, err)
	assert.Equal(t, Layout{Format: FormatNamed, Date: 0, Open: 2, High: 3, Low: 4, Close: 1, Volume: 5}, l)

	l, err = DetectLayout([]string{"a", "b", "c", "d", "e", "f"})
	require.NoError(t, err)
	assert.Equal(t, FormatFixed, l.Format)
	assert.Equal(t, -1, l.Volume)
	assert.Equal(t, "fixed", l.Format.String())
}

// ────────────────────────────────────────────────────────────
// JSON
// ────────────────────────────────────────────────────────────

func TestParseJSON(t *testing.T) {
	in := `[
		{"Date": "2024-01-03", "Open": 2, "High": "2.5", "Low": 1.5, "Close": 2.2},
		{"date": "2024-01-02", "open": "1,000", "high": 1001, "low": 999, "ltp": 1000.5, "volume": 10},
		{"date": "2024-01-04", "open": 1, "high": 1, "low": 1, "close": null},
		{"date": "garbage", "open": 1, "high": 1, "low": 1, "close": 1}
	]`

	s, rep, err := ParseJSON(strings.NewReader(in), Options{Symbol: "J"})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "2024-01-02", s.Bars[0].Day())
	assert.Equal(t, 1000.0, s.Bars[0].Open)
	assert.Equal(t, 1000.5, s.Bars[0].Close)
	require.NotNil(t, s.Bars[0].Volume)
	assert.Equal(t, 2.5, s.Bars[1].High)

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Dropped)
	assert.Equal(t, 3, rep.Errors[0].Line)
	assert.Equal(t, "close", rep.Errors[0].Field)
	assert.Equal(t, 4, rep.Errors[1].Line)
	assert.Equal(t, "date", rep.Errors[1].Field)
}

func TestParseJSON_NotAnArray(t *testing.T) {
	_, _, err := ParseJSON(strings.NewReader(`{"date": 1}`), Options{})
	assert.Error(t, err)
}

// ────────────────────────────────────────────────────────────
// Cells
// ────────────────────────────────────────────────────────────

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      any
		want    float64
		wantErr bool
	}{
		{"12.5", 12.5, false},
		{" 1,234,567.25 ", 1234567.25, false},
		{`"42"`, 42, false},
		{"-3", -3, false},
		{"1e3", 1000, false},
		{12.0, 12, false},
		{7, 7, false},
		{"", 0, true},
		{"   ", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"abc", 0, true},
		{nil, 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %v", tt.in)
			continue
		}
		require.NoError(t, err, "input %v", tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []any{
		"2024-01-02",
		"2024-01-02 00:00:00-05:00",
		"2024-01-02 15:30:00",
		"2024-01-02T23:00:00+05:30",
		"2024/01/02",
		"02-Jan-2024",
		"02-Jan-24",
		"2-Jan-24",
		"01/02/2024",
		"1/2/2024",
		"Jan 2, 2024",
		int64(1704153600),
		float64(1704153600000),
		"1704153600",
	}
	for _, in := range tests {
		got, err := ParseDate(in)
		require.NoError(t, err, "input %v", in)
		assert.Equal(t, want, got, "input %v", in)
	}

	for _, in := range []any{nil, "", "yesterday", "2024-13-45", "13/13/2024"} {
		_, err := ParseDate(in)
		assert.Error(t, err, "input %v", in)
	}
}

func TestParseDate_SlashMonthFirst(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"03/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"01/02/2024", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"3/5/2024", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		// day-first only when the first field cannot be a month
		{"15/03/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	in := "date,open,high,low,close\n" +
		"03/18/2024,10,11,9,10.5\n" +
		"03/14/2024,10,11,9,10.1\n" +
		"03/15/2024,10,11,9,10.2\n"
	s, rep, err := ParseCSV(strings.NewReader(in), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Kept)
	assert.Zero(t, rep.Dropped)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{10.1, 10.2, 10.5}, s.Closes())
}
