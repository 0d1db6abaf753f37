// Package scanner backtests a list of symbols through a bounded worker
// pool and collects the symbols that end in an open position.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dti-backtester/internal/cache"
	"dti-backtester/internal/logger"
	"dti-backtester/internal/metrics"
	"dti-backtester/internal/model"
	"dti-backtester/internal/strategy"
)

// DefaultWorkers bounds concurrent fetch+analyze tasks.
const DefaultWorkers = 2

// Options configures a Scanner. Zero values take defaults.
type Options struct {
	Workers  int    // default DefaultWorkers
	Period   string // cache key period, default "max"
	Interval string // cache key interval, default "1d"

	Runs    model.RunWriter // optional; every successful analysis is persisted
	Metrics *metrics.Metrics
	Log     *zap.Logger
	Clock   cache.Clock

	// OnProgress is called after each symbol, from the worker goroutine.
	OnProgress func(p Progress)
}

// Progress reports scan advancement.
type Progress struct {
	Done   int
	Total  int
	Symbol string
	Err    error
}

// Opportunity is a symbol whose backtest ends in position.
type Opportunity struct {
	Symbol             string             `csv:"symbol" json:"symbol"`
	Name               string             `csv:"name" json:"name"`
	RunID              string             `csv:"run_id" json:"runId"`
	Position           model.OpenPosition `csv:"-" json:"position"`
	WinRate            float64            `csv:"win_rate" json:"winRate"`
	TotalTrades        int                `csv:"total_trades" json:"totalTrades"`
	TotalReturnPercent float64            `csv:"total_return_percent" json:"totalReturnPercent"`
}

// Failure records a symbol that could not be analyzed.
type Failure struct {
	Symbol string
	Err    error
}

// Summary is the outcome of one scan.
type Summary struct {
	Processed     int
	Succeeded     int
	Failed        int
	FromCache     int                  // served without loading
	BySource      map[cache.Source]int // successfully loaded payloads by source
	DroppedRows   int                  // malformed rows behind every analyzed series, cached ones included
	Opportunities []Opportunity // win rate descending, then symbol
	Failures      []Failure     // in symbol order
	Duration      time.Duration
}

// Scanner runs the DTI strategy over many symbols.
type Scanner struct {
	provider Provider
	cache    cache.Cache
	params   model.StrategyParams
	opts     Options
}

// New validates params and returns a Scanner. A nil cache disables caching.
func New(p Provider, c cache.Cache, params model.StrategyParams, opts Options) (*Scanner, error) {
	if err := strategy.Validate(params); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Period == "" {
		opts.Period = "max"
	}
	if opts.Interval == "" {
		opts.Interval = "1d"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = cache.SystemClock
	}
	return &Scanner{provider: p, cache: c, params: params, opts: opts}, nil
}

// symbolResult is the per-symbol outcome collected by Scan.
type symbolResult struct {
	stock     Stock
	analysis  *strategy.Analysis
	runID     string
	fromCache bool
	source    cache.Source
	dropped   int
	err       error
}

// Scan processes stocks with at most Options.Workers in flight. Per-symbol
// failures are recorded in the summary; only cancellation of ctx fails the
// whole scan.
func (s *Scanner) Scan(ctx context.Context, stocks []Stock) (Summary, error) {
	start := time.Now()
	results := make([]symbolResult, len(stocks))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i := range stocks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s.opts.Metrics.ScanInFlightInc()
			res := s.scanOne(gctx, stocks[i])
			s.opts.Metrics.ScanInFlightDec()
			results[i] = res

			mu.Lock()
			done++
			p := Progress{Done: done, Total: len(stocks), Symbol: stocks[i].Symbol, Err: res.err}
			mu.Unlock()
			if s.opts.OnProgress != nil {
				s.opts.OnProgress(p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	if err := ctx.Err(); err != nil {
		return Summary{}, err
	}

	sum := s.summarize(results)
	sum.Duration = time.Since(start)
	s.opts.Metrics.RecordScan(sum.Duration, len(sum.Opportunities))
	s.opts.Log.Info("scan complete",
		zap.Int("processed", sum.Processed),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int("opportunities", len(sum.Opportunities)),
		zap.Duration("took", sum.Duration),
	)
	return sum, nil
}

func (s *Scanner) scanOne(ctx context.Context, st Stock) symbolResult {
	res := symbolResult{stock: st}

	ser, err := s.load(ctx, st.Symbol, &res)
	if err != nil {
		res.err = err
		s.opts.Metrics.RecordFailure()
		s.opts.Metrics.ScanSymbolsInc("error")
		s.opts.Log.Warn("symbol load failed", zap.String("symbol", st.Symbol), zap.Error(err))
		return res
	}

	t0 := time.Now()
	a, err := strategy.Analyze(st.Symbol, ser, s.params)
	if err != nil {
		res.err = err
		s.opts.Metrics.RecordFailure()
		s.opts.Metrics.ScanSymbolsInc("error")
		s.opts.Log.Warn("symbol analysis failed", zap.String("symbol", st.Symbol), zap.Error(err))
		return res
	}
	s.opts.Metrics.RecordRun(a.Completed, time.Since(t0))
	s.opts.Metrics.ScanSymbolsInc("ok")
	res.analysis = &a

	if s.opts.Runs != nil {
		run := a.ToRun(res.dropped, s.opts.Clock.Now())
		res.runID = run.ID
		rctx := logger.WithRunID(ctx, run.ID)
		if err := s.opts.Runs.SaveRun(rctx, run); err != nil {
			// the analysis stands; persistence is best effort
			s.opts.Log.Warn("save run failed", append(logger.Fields(rctx), zap.String("symbol", st.Symbol), zap.Error(err))...)
		}
	}
	return res
}

// load returns the series for symbol through the cache when one is set.
func (s *Scanner) load(ctx context.Context, symbol string, res *symbolResult) (model.Series, error) {
	if s.cache == nil {
		ser, rep, err := s.provider.Fetch(ctx, symbol)
		res.dropped = rep.Dropped
		s.opts.Metrics.RecordDropped(rep.Dropped)
		if err != nil {
			return model.Series{}, err
		}
		res.source = s.provider.Source()
		return ser, nil
	}

	key := cache.Key{Symbol: symbol, Period: s.opts.Period, Interval: s.opts.Interval}
	loaded := false
	entry, err := cache.GetOrLoad(ctx, s.cache, key, func(ctx context.Context, _ cache.Key) ([]byte, cache.Source, error) {
		loaded = true
		ser, rep, err := s.provider.Fetch(ctx, symbol)
		if err != nil {
			return nil, "", err
		}
		s.opts.Metrics.RecordDropped(rep.Dropped)
		payload, err := json.Marshal(cachedSeries{Series: ser, Dropped: rep.Dropped})
		return payload, s.provider.Source(), err
	})
	if err != nil {
		s.opts.Metrics.RecordCacheLookup("miss")
		return model.Series{}, err
	}

	switch {
	case !loaded:
		res.fromCache = true
		s.opts.Metrics.RecordCacheLookup("hit")
	case entry.Stale:
		res.fromCache = true
		s.opts.Metrics.RecordCacheLookup("stale")
	default:
		res.source = entry.Source
		s.opts.Metrics.RecordCacheLookup("miss")
	}

	var cs cachedSeries
	if err := json.Unmarshal(entry.Payload, &cs); err != nil {
		return model.Series{}, fmt.Errorf("decode cached %s: %w", key, err)
	}
	res.dropped = cs.Dropped
	return cs.Series, nil
}

// cachedSeries is the cache payload: a normalized series and the number of
// rows the normalizer dropped producing it.
type cachedSeries struct {
	Series  model.Series `json:"series"`
	Dropped int          `json:"dropped"`
}

func (s *Scanner) summarize(results []symbolResult) Summary {
	sum := Summary{BySource: make(map[cache.Source]int)}
	for i := range results {
		r := &results[i]
		if r.stock.Symbol == "" && r.err == nil && r.analysis == nil {
			continue // not started before cancellation
		}
		sum.Processed++
		sum.DroppedRows += r.dropped
		if r.fromCache {
			sum.FromCache++
		} else if r.source != "" {
			sum.BySource[r.source]++
		}
		if r.err != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, Failure{Symbol: r.stock.Symbol, Err: r.err})
			continue
		}
		sum.Succeeded++
		if r.analysis.Active != nil {
			sum.Opportunities = append(sum.Opportunities, Opportunity{
				Symbol:             r.stock.Symbol,
				Name:               r.stock.Name,
				RunID:              r.runID,
				Position:           *r.analysis.Active,
				WinRate:            r.analysis.Metrics.WinRate,
				TotalTrades:        r.analysis.Metrics.TotalTrades,
				TotalReturnPercent: r.analysis.Metrics.TotalReturnPercent,
			})
		}
	}
	SortOpportunities(sum.Opportunities)
	sort.SliceStable(sum.Failures, func(i, j int) bool { return sum.Failures[i].Symbol < sum.Failures[j].Symbol })
	return sum
}

// SortOpportunities orders by win rate descending, then symbol.
func SortOpportunities(ops []Opportunity) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].WinRate != ops[j].WinRate {
			return ops[i].WinRate > ops[j].WinRate
		}
		return ops[i].Symbol < ops[j].Symbol
	})
}

// StoredOpportunities lists the open position of every symbol's latest
// persisted run. Names are taken from stocks when the symbol is listed.
func StoredOpportunities(ctx context.Context, runs model.RunReader, stocks []Stock) ([]Opportunity, error) {
	active, err := runs.ActivePositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("stored opportunities: %w", err)
	}
	names := make(map[string]string, len(stocks))
	for _, st := range stocks {
		names[st.Symbol] = st.Name
	}

	ops := make([]Opportunity, 0, len(active))
	for _, a := range active {
		ops = append(ops, Opportunity{
			Symbol:             a.Symbol,
			Name:               names[a.Symbol],
			RunID:              a.RunID,
			Position:           a.Position,
			WinRate:            a.WinRate,
			TotalTrades:        a.Trades,
			TotalReturnPercent: a.TotalReturnPercent,
		})
	}
	SortOpportunities(ops)
	return ops, nil
}
