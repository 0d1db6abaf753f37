// Package metrics exposes Prometheus instrumentation and a health endpoint
// for the DTI backtester.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dti-backtester/internal/model"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Pipeline
	RunsTotal       *prometheus.CounterVec // labels: result=ok|error
	TradesTotal     *prometheus.CounterVec // labels: exit_reason
	ActivePositions prometheus.Gauge
	DroppedRows     prometheus.Counter
	AnalyzeDur      prometheus.Histogram

	// Cache
	CacheLookups *prometheus.CounterVec // labels: result=hit|stale|miss
	CacheBreaker prometheus.Gauge       // 0=closed, 1=open, 2=half-open

	// Scanner
	ScanSymbols  *prometheus.CounterVec // labels: result=ok|error
	ScanInFlight prometheus.Gauge
	ScanDur      prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dti_backtest_runs_total",
			Help: "Backtest runs by result",
		}, []string{"result"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dti_trades_total",
			Help: "Completed trades by exit reason",
		}, []string{"exit_reason"}),
		ActivePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dti_active_positions",
			Help: "Symbols whose latest backtest ended in position",
		}),
		DroppedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dti_dropped_rows_total",
			Help: "Malformed input rows dropped during normalization",
		}),
		AnalyzeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dti_analyze_duration_seconds",
			Help:    "Indicator + backtest + metrics latency per symbol",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dti_cache_lookups_total",
			Help: "Data cache lookups by result",
		}, []string{"result"}),
		CacheBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dti_cache_circuit_breaker_state",
			Help: "Redis cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),

		ScanSymbols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dti_scan_symbols_total",
			Help: "Symbols processed by the scanner by result",
		}, []string{"result"}),
		ScanInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dti_scan_in_flight",
			Help: "Symbols currently being fetched or analyzed",
		}),
		ScanDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dti_scan_duration_seconds",
			Help:    "Wall time of a full scan",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.TradesTotal,
		m.ActivePositions,
		m.DroppedRows,
		m.AnalyzeDur,
		m.CacheLookups,
		m.CacheBreaker,
		m.ScanSymbols,
		m.ScanInFlight,
		m.ScanDur,
	)
	return m
}

// The Record helpers are no-ops on a nil *Metrics.

// RecordRun counts a successful analysis and its completed trades.
func (m *Metrics) RecordRun(trades []model.Trade, took time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("ok").Inc()
	for i := range trades {
		m.TradesTotal.WithLabelValues(string(trades[i].ExitReason)).Inc()
	}
	m.AnalyzeDur.Observe(took.Seconds())
}

// RecordFailure counts a failed analysis.
func (m *Metrics) RecordFailure() {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("error").Inc()
}

// RecordDropped adds malformed rows dropped by the normalizer.
func (m *Metrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedRows.Add(float64(n))
}

// RecordCacheLookup counts a cache lookup: "hit", "stale" or "miss".
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// SetBreakerState publishes the cache circuit breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.CacheBreaker.Set(float64(state))
}

// ScanSymbolsInc counts a scanned symbol by result ("ok" or "error").
func (m *Metrics) ScanSymbolsInc(result string) {
	if m == nil {
		return
	}
	m.ScanSymbols.WithLabelValues(result).Inc()
}

func (m *Metrics) ScanInFlightInc() {
	if m != nil {
		m.ScanInFlight.Inc()
	}
}

func (m *Metrics) ScanInFlightDec() {
	if m != nil {
		m.ScanInFlight.Dec()
	}
}

// RecordScan observes a finished scan and publishes its open positions.
func (m *Metrics) RecordScan(took time.Duration, active int) {
	if m == nil {
		return
	}
	m.ScanDur.Observe(took.Seconds())
	m.ActivePositions.Set(float64(active))
}

// HealthStatus represents the dependency health of a running scan service.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastScanAt     time.Time `json:"last_scan_at"`
	ScanRunning    bool      `json:"scan_running"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// Redis and SQLite are optional; an unused dependency never degrades health.
	redisUsed  bool
	sqliteUsed bool
}

// NewHealthStatus returns a health status for the given dependencies.
func NewHealthStatus(redisUsed, sqliteUsed bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		redisUsed:  redisUsed,
		sqliteUsed: sqliteUsed,
	}
}

func (h *HealthStatus) SetScanRunning(v bool) {
	h.mu.Lock()
	h.ScanRunning = v
	if !v {
		h.LastScanAt = time.Now()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	check()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	redisDown := h.redisUsed && !h.RedisConnected
	sqliteDown := h.sqliteUsed && !h.SQLiteOK

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if redisDown && sqliteDown {
		overallStatus = "unhealthy"
	}

	lastScan := ""
	if !h.LastScanAt.IsZero() {
		lastScan = h.LastScanAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		ScanRunning     bool    `json:"scan_running"`
		LastScanAt      string  `json:"last_scan_at"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		ScanRunning:     h.ScanRunning,
		LastScanAt:      lastScan,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *zap.Logger
}

// NewServer creates a metrics and health server. A nil gatherer means
// prometheus.DefaultGatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus, log *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		log:  log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
