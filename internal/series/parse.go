package series

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	errMissing   = errors.New("missing value")
	errNotFinite = errors.New("not a finite number")
)

// ParseNumber converts a cell to float64. Strings may carry thousands
// separators, surrounding quotes or spaces. NaN and infinities are rejected.
func ParseNumber(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, errMissing
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return parseDecimal(x.String())
	case string:
		return parseDecimal(x)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func finite(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

func parseDecimal(s string) (float64, error) {
	s = cleanCell(s)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, errMissing
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return finite(d.InexactFloat64())
}

func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// dateLayouts are tried in order. twoDigitYear marks layouts whose "06"
// year must land in the 2000s.
var dateLayouts = []struct {
	layout       string
	twoDigitYear bool
}{
	{"2006-01-02", false},
	{"2006-01-02 15:04:05-07:00", false},
	{"2006-01-02 15:04:05", false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05", false},
	{"2006/01/02", false},
	{"02-Jan-2006", false},
	{"2-Jan-2006", false},
	{"02-Jan-06", true},
	{"2-Jan-06", true},
	{"01/02/2006", false}, // month first
	{"1/2/2006", false},
	{"02/01/2006", false}, // day first, reached only when the first field exceeds 12
	{"2/1/2006", false},
	{"Jan 2, 2006", false},
	{"02 Jan 2006", false},
}

// ParseDate converts a cell to a calendar day at midnight UTC.
// Numbers are read as unix epoch seconds, or milliseconds above 1e11.
// A timestamp with an offset keeps its local calendar day.
func ParseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, errMissing
	case time.Time:
		return day(x), nil
	case string:
		return parseDateString(x)
	}

	f, err := ParseNumber(v)
	if err != nil {
		return time.Time{}, err
	}
	return epochDay(f), nil
}

func parseDateString(s string) (time.Time, error) {
	s = cleanCell(s)
	if s == "" {
		return time.Time{}, errMissing
	}
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if l.twoDigitYear && t.Year() < 2000 {
			t = t.AddDate(100, 0, 0)
		}
		return day(t), nil
	}
	if f, err := parseDecimal(s); err == nil && f > 0 {
		return epochDay(f), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func epochDay(f float64) time.Time {
	if f > 1e11 {
		return day(time.UnixMilli(int64(f)).UTC())
	}
	return day(time.Unix(int64(f), 0).UTC())
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
