package series

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"dti-backtester/internal/model"
)

// ReadJSON decodes a JSON array of objects into raw rows. Keys match
// case-insensitively and "ltp" stands in for a missing "close". Line is
// the 1-based position in the array.
func ReadJSON(r io.Reader) ([]RawRow, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		return nil, fmt.Errorf("decode json rows: %w", err)
	}

	rows := make([]RawRow, 0, len(objs))
	for i, obj := range objs {
		fields := make(map[string]any, len(obj))
		for k, v := range obj {
			fields[strings.ToLower(strings.TrimSpace(k))] = v
		}
		closeVal, ok := fields["close"]
		if !ok {
			closeVal = fields["ltp"]
		}
		rows = append(rows, RawRow{
			Line:   i + 1,
			Date:   fields["date"],
			Open:   fields["open"],
			High:   fields["high"],
			Low:    fields["low"],
			Close:  closeVal,
			Volume: fields["volume"],
		})
	}
	return rows, nil
}

// ParseJSON reads and normalizes a JSON array of price rows.
func ParseJSON(r io.Reader, opts Options) (model.Series, Report, error) {
	rows, err := ReadJSON(r)
	if err != nil {
		return model.Series{Symbol: opts.Symbol}, Report{}, err
	}
	return Normalize(rows, opts)
}
