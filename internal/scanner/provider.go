package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"dti-backtester/internal/cache"
	"dti-backtester/internal/model"
	"dti-backtester/internal/series"
)

// ErrNoData is returned by a Provider that has no file for a symbol.
var ErrNoData = errors.New("no data for symbol")

// Provider loads a normalized price series for one symbol.
type Provider interface {
	Fetch(ctx context.Context, symbol string) (model.Series, series.Report, error)
	Source() cache.Source
}

// DirProvider reads {Dir}/{symbol}.csv, falling back to {symbol}.json.
type DirProvider struct {
	Dir     string
	MinRows int // normalizer threshold; 0 means series.DefaultScanMinRows
}

// NewDirProvider returns a provider over dir using the scan threshold.
func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{Dir: dir, MinRows: series.DefaultScanMinRows}
}

func (p *DirProvider) Source() cache.Source { return cache.SourceCSV }

func (p *DirProvider) Fetch(ctx context.Context, symbol string) (model.Series, series.Report, error) {
	if err := ctx.Err(); err != nil {
		return model.Series{}, series.Report{}, err
	}
	opts := series.ScanOptions(symbol)
	if p.MinRows > 0 {
		opts.MinRows = p.MinRows
	}

	base := filepath.Join(p.Dir, fileName(symbol))
	for _, c := range []struct {
		ext   string
		parse func(io.Reader, series.Options) (model.Series, series.Report, error)
	}{
		{".csv", series.ParseCSV},
		{".json", series.ParseJSON},
	} {
		f, err := os.Open(base + c.ext)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return model.Series{}, series.Report{}, err
		}
		s, rep, err := c.parse(f, opts)
		f.Close()
		if err != nil {
			return s, rep, fmt.Errorf("%s%s: %w", symbol, c.ext, err)
		}
		return s, rep, nil
	}
	return model.Series{}, series.Report{}, fmt.Errorf("%s in %s: %w", symbol, p.Dir, ErrNoData)
}

// fileName maps a symbol to a safe base file name.
func fileName(symbol string) string {
	r := strings.NewReplacer("/", "_", `\`, "_", ":", "_", "^", "")
	return r.Replace(strings.TrimSpace(symbol))
}

// Stock is one entry of a stock list.
type Stock struct {
	Symbol string `csv:"symbol"`
	Name   string `csv:"name"`
	Index  string `csv:"index"`
}

// ReadStockList parses a CSV stock list with at least a "symbol" column.
// Blank symbols are skipped and duplicates keep their first occurrence.
func ReadStockList(r io.Reader) ([]Stock, error) {
	var raw []Stock
	if err := gocsv.Unmarshal(r, &raw); err != nil {
		return nil, fmt.Errorf("read stock list: %w", err)
	}
	seen := make(map[string]bool, len(raw))
	out := make([]Stock, 0, len(raw))
	for _, s := range raw {
		s.Symbol = strings.TrimSpace(s.Symbol)
		if s.Symbol == "" || seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		out = append(out, s)
	}
	return out, nil
}
