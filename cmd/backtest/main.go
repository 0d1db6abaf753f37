// cmd/backtest runs the DTI strategy over one uploaded price file and prints
// the trade log, the open position and the performance summary.
//
// Usage:
//
//	go run ./cmd/backtest --file=data/prices/INFY.csv --symbol=INFY --out=trades.csv
//	go run ./cmd/backtest --from-db --symbol=INFY --db=data/dti.db
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"dti-backtester/config"
	"dti-backtester/internal/logger"
	"dti-backtester/internal/model"
	"dti-backtester/internal/report"
	"dti-backtester/internal/series"
	sqlitestore "dti-backtester/internal/store/sqlite"
	"dti-backtester/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[backtest] config: %v\n", err)
		os.Exit(1)
	}

	file := flag.String("file", "", "Price file (.csv or .json)")
	symbol := flag.String("symbol", "", "Symbol name (default: file name without extension)")
	out := flag.String("out", "", "Write the trade log as CSV to this path")
	dbPath := flag.String("db", cfg.SQLitePath, "Save series and run to this SQLite database (empty = skip)")
	forceClose := flag.Bool("force-close", cfg.ForceCloseAtEnd, "Close any open position at the last bar")
	fromDB := flag.Bool("from-db", false, "Re-run on the series stored in --db instead of a file")
	flag.Parse()

	log, err := logger.Init("backtest", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[backtest] logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var (
		s    model.Series
		rep  series.Report
		prev *model.BacktestRun
	)
	switch {
	case *fromDB:
		if *symbol == "" || *dbPath == "" {
			log.Fatal("--from-db needs --symbol and --db")
		}
		r, err := sqlitestore.NewReader(*dbPath, log)
		if err != nil {
			log.Fatal("sqlite", zap.Error(err))
		}
		s, prev, err = loadStored(context.Background(), r, r, *symbol)
		r.Close()
		if err != nil {
			log.Fatal("load stored series", zap.String("symbol", *symbol), zap.Error(err))
		}
		rep = series.Report{Total: s.Len(), Kept: s.Len()}
	case *file == "":
		log.Fatal("no input file, use --file or --from-db")
	default:
		if *symbol == "" {
			*symbol = strings.ToUpper(strings.TrimSuffix(filepath.Base(*file), filepath.Ext(*file)))
		}
		s, rep, err = parseFile(*file, *symbol, cfg.MinUploadRows)
		if err != nil {
			log.Fatal("parse failed", zap.String("file", *file), zap.Error(err))
		}
		for _, e := range rep.Errors {
			log.Debug("row dropped", zap.Int("line", e.Line), zap.String("field", e.Field), zap.String("reason", e.Reason))
		}
	}
	log.Info("series loaded", zap.String("symbol", *symbol), zap.Int("kept", rep.Kept), zap.Int("dropped", rep.Dropped))

	params := cfg.StrategyParams()
	params.ForceCloseAtEnd = *forceClose

	a, err := strategy.Analyze(*symbol, s, params)
	if err != nil {
		log.Fatal("analysis failed", zap.Error(err))
	}

	printResult(os.Stdout, &a, rep)
	if prev != nil {
		printPrevious(os.Stdout, prev)
	}

	if *out != "" {
		if err := writeTrades(*out, &a); err != nil {
			log.Fatal("export failed", zap.Error(err))
		}
		log.Info("trade log written", zap.String("path", *out))
	}

	if *dbPath != "" {
		run := a.ToRun(rep.Dropped, time.Now())
		if prev != nil {
			run.DroppedRows = prev.DroppedRows
		}
		ctx := logger.WithRunID(context.Background(), run.ID)
		if err := save(ctx, *dbPath, log, s, run, !*fromDB); err != nil {
			log.Fatal("save failed", zap.Error(err))
		}
		logger.For(ctx, log).Info("run saved", zap.String("db", *dbPath))
	}
}

func parseFile(path, symbol string, minRows int) (model.Series, series.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Series{}, series.Report{}, err
	}
	defer f.Close()

	opts := series.UploadOptions(symbol)
	opts.MinRows = minRows
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return series.ParseJSON(f, opts)
	}
	return series.ParseCSV(f, opts)
}

func writeTrades(path string, a *strategy.Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteTrades(f, a.Symbol, a.Completed); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// loadStored reads a persisted series and the latest run made on it, which
// is nil when the series was saved without a run.
func loadStored(ctx context.Context, bars model.SeriesReader, runs model.RunReader, symbol string) (model.Series, *model.BacktestRun, error) {
	s, err := bars.ReadSeries(ctx, symbol)
	if err != nil {
		return model.Series{}, nil, err
	}
	prev, err := runs.LatestRun(ctx, symbol)
	if err != nil {
		return model.Series{}, nil, err
	}
	return s, prev, nil
}

func save(ctx context.Context, path string, log *zap.Logger, s model.Series, run model.BacktestRun, withSeries bool) error {
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path}, log)
	if err != nil {
		return err
	}
	defer w.Close()
	if withSeries {
		if err := w.SaveSeries(ctx, s); err != nil {
			return err
		}
	}
	return w.SaveRun(ctx, run)
}

func printPrevious(w io.Writer, run *model.BacktestRun) {
	p, m := run.Params, run.Metrics
	fmt.Fprintf(w, "\nPrevious run %s (%s): r=%d s=%d u=%d, %d trades, win rate %.1f%%, return %.2f%%, open=%t\n",
		run.ID, run.CreatedAt.Format(time.RFC3339), p.R, p.S, p.U,
		m.TotalTrades, m.WinRate*100, m.TotalReturnPercent, run.Active != nil)
}

func printResult(w io.Writer, a *strategy.Analysis, rep series.Report) {
	p := a.Params
	fmt.Fprintf(w, "%s  bars=%d dropped=%d  r=%d s=%d u=%d target=%.2f%% stop=%.2f%%\n\n",
		a.Symbol, a.Series.Len(), rep.Dropped, p.R, p.S, p.U, p.TargetPercent, p.StopLossPercent)

	fmt.Fprintf(w, "%-4s %-10s %10s %-10s %10s %-10s %9s %5s\n",
		"#", "ENTRY", "PRICE", "EXIT", "PRICE", "REASON", "PNL%", "DAYS")
	for i, t := range a.Completed {
		fmt.Fprintf(w, "%-4d %-10s %10.2f %-10s %10.2f %-10s %9.2f %5d\n",
			i+1, t.EntryDate.Format(model.DateLayout), t.EntryPrice,
			t.ExitDate.Format(model.DateLayout), t.ExitPrice, t.ExitReason, t.PnLPercent, t.DurationDays)
	}
	if len(a.Completed) == 0 {
		fmt.Fprintln(w, "(no completed trades)")
	}

	if pos := a.Active; pos != nil {
		fmt.Fprintf(w, "\nOPEN since %s @ %.2f, last %.2f on %s (%+.2f%%, %d days), stop %.2f, target %.2f\n",
			pos.EntryDate.Format(model.DateLayout), pos.EntryPrice, pos.LastPrice,
			pos.LastDate.Format(model.DateLayout), pos.UnrealizedPnLPercent, pos.DurationDays,
			pos.StopLossPrice, pos.TargetPrice)
	}

	m := a.Metrics
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        BACKTEST COMPLETE             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Trades:          %-18d ║\n", m.TotalTrades)
	fmt.Fprintf(w, "║  Win rate:        %-18s ║\n", fmt.Sprintf("%.1f%% (%d/%d)", m.WinRate*100, m.WinCount, m.TotalTrades))
	fmt.Fprintf(w, "║  Avg gain:        %-18s ║\n", fmt.Sprintf("%.2f%%", m.AverageGainPercent))
	fmt.Fprintf(w, "║  Avg loss:        %-18s ║\n", fmt.Sprintf("%.2f%%", m.AverageLossPercent))
	fmt.Fprintf(w, "║  Total return:    %-18s ║\n", fmt.Sprintf("%.2f%%", m.TotalReturnPercent))
	fmt.Fprintf(w, "║  Profit factor:   %-18.2f ║\n", m.ProfitFactor)
	fmt.Fprintf(w, "║  Outcome:         %-18s ║\n", a.Outcome().Kind)
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
}
