package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"dti-backtester/internal/model"
)

// Config holds all application configuration loaded from app.env and the environment.
type Config struct {
	// Strategy
	DTIR             int     `mapstructure:"DTI_R"`
	DTIS             int     `mapstructure:"DTI_S"`
	DTIU             int     `mapstructure:"DTI_U"`
	TargetPercent    float64 `mapstructure:"TARGET_PERCENT"`
	StopLossPercent  float64 `mapstructure:"STOP_LOSS_PERCENT"`
	EntryThreshold   float64 `mapstructure:"ENTRY_THRESHOLD"`
	ConfirmThreshold float64 `mapstructure:"CONFIRM_THRESHOLD"`
	ForceCloseAtEnd  bool    `mapstructure:"FORCE_CLOSE_AT_END"`

	// Input
	MinUploadRows int    `mapstructure:"MIN_UPLOAD_ROWS"`
	MinScanRows   int    `mapstructure:"MIN_SCAN_ROWS"`
	DataDir       string `mapstructure:"DATA_DIR"`

	// Scan
	ScanWorkers  int           `mapstructure:"SCAN_WORKERS"`
	CacheTTL     time.Duration `mapstructure:"CACHE_TTL"`
	CacheBackend string        `mapstructure:"CACHE_BACKEND"` // memory | redis

	// Infrastructure
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"` // empty disables persistence
	MetricsAddr   string `mapstructure:"METRICS_ADDR"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

var defaults = map[string]any{
	"DTI_R":              14,
	"DTI_S":              10,
	"DTI_U":              5,
	"TARGET_PERCENT":     8.0,
	"STOP_LOSS_PERCENT":  5.0,
	"ENTRY_THRESHOLD":    0.0,
	"CONFIRM_THRESHOLD":  0.0,
	"FORCE_CLOSE_AT_END": false,
	"MIN_UPLOAD_ROWS":    30,
	"MIN_SCAN_ROWS":      5,
	"DATA_DIR":           "data/prices",
	"SCAN_WORKERS":       2,
	"CACHE_TTL":          "24h",
	"CACHE_BACKEND":      BackendMemory,
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PASSWORD":     "",
	"SQLITE_PATH":        "",
	"METRICS_ADDR":       ":9090",
	"LOG_LEVEL":          "info",
}

// Load reads ./app.env if present, then environment variables, over the defaults.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom is Load with an explicit directory for app.env.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read app.env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("config: CACHE_BACKEND %q, want %q or %q", c.CacheBackend, BackendMemory, BackendRedis)
	}
	if c.ScanWorkers < 1 {
		return fmt.Errorf("config: SCAN_WORKERS must be >= 1, got %d", c.ScanWorkers)
	}
	if c.MinUploadRows < 1 || c.MinScanRows < 1 {
		return fmt.Errorf("config: row thresholds must be >= 1")
	}
	return nil
}

// StrategyParams returns the backtest parameters. They are validated by the strategy, not here.
func (c *Config) StrategyParams() model.StrategyParams {
	return model.StrategyParams{
		R:                c.DTIR,
		S:                c.DTIS,
		U:                c.DTIU,
		TargetPercent:    c.TargetPercent,
		StopLossPercent:  c.StopLossPercent,
		EntryThreshold:   c.EntryThreshold,
		ConfirmThreshold: c.ConfirmThreshold,
		ForceCloseAtEnd:  c.ForceCloseAtEnd,
	}
}
