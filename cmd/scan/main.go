// cmd/scan backtests every symbol of a stock list against price files in a
// data directory and reports the symbols that currently hold a DTI position.
//
// Usage:
//
//	go run ./cmd/scan --stocks=data/nifty50.csv --dir=data/prices --out=active.csv
//	go run ./cmd/scan --list-active --out=active.csv   # from SQLITE_PATH, no scan
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"dti-backtester/config"
	"dti-backtester/internal/cache"
	"dti-backtester/internal/logger"
	"dti-backtester/internal/metrics"
	"dti-backtester/internal/model"
	"dti-backtester/internal/report"
	"dti-backtester/internal/scanner"
	redisstore "dti-backtester/internal/store/redis"
	sqlitestore "dti-backtester/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[scan] config: %v\n", err)
		os.Exit(1)
	}

	stocksPath := flag.String("stocks", "", "Stock list CSV with a symbol column (name and index optional)")
	dataDir := flag.String("dir", cfg.DataDir, "Directory of {symbol}.csv / {symbol}.json price files")
	out := flag.String("out", "", "Write opportunities as CSV to this path (default: stdout)")
	workers := flag.Int("workers", cfg.ScanWorkers, "Concurrent symbols")
	metricsAddr := flag.String("metrics", cfg.MetricsAddr, "Metrics and health listen address (empty = off)")
	listActive := flag.Bool("list-active", false, "Print the open positions of the latest stored runs and exit")
	flag.Parse()

	log, err := logger.Init("scan", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[scan] logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *listActive {
		if err := listStored(cfg.SQLitePath, *stocksPath, *out, log); err != nil {
			log.Fatal("list active", zap.Error(err))
		}
		return
	}

	if *stocksPath == "" {
		log.Fatal("no stock list, use --stocks")
	}
	stocks, err := readStocks(*stocksPath)
	if err != nil {
		log.Fatal("stock list", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, cancelling scan")
		cancel()
	}()

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	prom := metrics.NewMetrics(reg)

	// ---- Cache ----
	var (
		c   cache.Cache
		rdb *goredis.Client
	)
	switch cfg.CacheBackend {
	case config.BackendRedis:
		rc, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.CacheTTL,
		}, redisstore.WithLogger(log))
		if err != nil {
			log.Fatal("redis cache", zap.Error(err))
		}
		defer rc.Close()
		rc.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.SetBreakerState(int(to))
			log.Warn("cache circuit breaker", zap.Stringer("from", from), zap.Stringer("to", to))
		}
		bc := redisstore.NewBufferedCache(rc, 0)
		bc.OnFlush = func(n int) { log.Info("cache writes replayed", zap.Int("count", n)) }
		c, rdb = bc, rc.Client()
	default:
		c = cache.NewMemory(cfg.CacheTTL, cache.SystemClock)
	}

	// ---- Persistence ----
	var (
		runs  model.RunWriter
		sqlDB *sql.DB
	)
	if cfg.SQLitePath != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath}, log)
		if err != nil {
			log.Fatal("sqlite", zap.Error(err))
		}
		defer w.Close()
		runs, sqlDB = w, w.DB().DB
	}

	health := metrics.NewHealthStatus(rdb != nil, sqlDB != nil)
	if *metricsAddr != "" {
		health.StartLivenessChecker(ctx, rdb, sqlDB, 15*time.Second)
		srv := metrics.NewServer(*metricsAddr, reg, health, log)
		srv.Start()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Stop(shutdownCtx); err != nil {
				log.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
	}

	// ---- Scan ----
	provider := scanner.NewDirProvider(*dataDir)
	provider.MinRows = cfg.MinScanRows

	sc, err := scanner.New(provider, c, cfg.StrategyParams(), scanner.Options{
		Workers: *workers,
		Runs:    runs,
		Metrics: prom,
		Log:     log,
		OnProgress: func(p scanner.Progress) {
			if p.Err != nil {
				log.Warn("symbol failed", zap.String("symbol", p.Symbol), zap.Int("done", p.Done), zap.Int("total", p.Total), zap.Error(p.Err))
				return
			}
			log.Debug("symbol done", zap.String("symbol", p.Symbol), zap.Int("done", p.Done), zap.Int("total", p.Total))
		},
	})
	if err != nil {
		log.Fatal("scanner", zap.Error(err))
	}

	log.Info("scan starting", zap.Int("symbols", len(stocks)), zap.String("dir", *dataDir), zap.Int("workers", *workers), zap.String("cache", cfg.CacheBackend))
	health.SetScanRunning(true)
	sum, err := sc.Scan(ctx, stocks)
	health.SetScanRunning(false)
	if err != nil {
		log.Error("scan aborted", zap.Error(err))
		return
	}

	if err := writeOpportunities(*out, sum.Opportunities); err != nil {
		log.Error("export failed", zap.Error(err))
		return
	}

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "╔══════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║           SCAN COMPLETE              ║")
	fmt.Fprintln(os.Stderr, "╠══════════════════════════════════════╣")
	fmt.Fprintf(os.Stderr, "║  Processed:       %-18d ║\n", sum.Processed)
	fmt.Fprintf(os.Stderr, "║  Succeeded:       %-18d ║\n", sum.Succeeded)
	fmt.Fprintf(os.Stderr, "║  Failed:          %-18d ║\n", sum.Failed)
	fmt.Fprintf(os.Stderr, "║  From cache:      %-18d ║\n", sum.FromCache)
	fmt.Fprintf(os.Stderr, "║  Loaded from csv: %-18d ║\n", sum.BySource[cache.SourceCSV])
	fmt.Fprintf(os.Stderr, "║  Dropped rows:    %-18d ║\n", sum.DroppedRows)
	fmt.Fprintf(os.Stderr, "║  Active trades:   %-18d ║\n", len(sum.Opportunities))
	fmt.Fprintf(os.Stderr, "║  Took:            %-18s ║\n", sum.Duration.Round(time.Millisecond))
	fmt.Fprintln(os.Stderr, "╚══════════════════════════════════════╝")
}

// listStored prints the opportunities persisted by earlier scans. The stock
// list is optional and only supplies names.
func listStored(dbPath, stocksPath, out string, log *zap.Logger) error {
	if dbPath == "" {
		return fmt.Errorf("SQLITE_PATH is not set")
	}
	var stocks []scanner.Stock
	if stocksPath != "" {
		var err error
		if stocks, err = readStocks(stocksPath); err != nil {
			return err
		}
	}

	r, err := sqlitestore.NewReader(dbPath, log)
	if err != nil {
		return err
	}
	defer r.Close()

	ops, err := scanner.StoredOpportunities(context.Background(), r, stocks)
	if err != nil {
		return err
	}
	log.Info("stored opportunities", zap.Int("count", len(ops)), zap.String("db", dbPath))
	return writeOpportunities(out, ops)
}

func readStocks(path string) ([]scanner.Stock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stocks, err := scanner.ReadStockList(f)
	if err != nil {
		return nil, err
	}
	if len(stocks) == 0 {
		return nil, fmt.Errorf("%s: no symbols", path)
	}
	return stocks, nil
}

func writeOpportunities(path string, ops []scanner.Opportunity) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return report.WriteOpportunities(w, ops)
}
