package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dti-backtester/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, model.StrategyParams{R: 14, S: 10, U: 5, TargetPercent: 8, StopLossPercent: 5}, cfg.StrategyParams())
	assert.Equal(t, 30, cfg.MinUploadRows)
	assert.Equal(t, 5, cfg.MinScanRows)
	assert.Equal(t, 2, cfg.ScanWorkers)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, BackendMemory, cfg.CacheBackend)
	assert.Empty(t, cfg.SQLitePath)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	env := "DTI_R=20\nTARGET_PERCENT=12.5\nCACHE_TTL=2h\nFORCE_CLOSE_AT_END=true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(env), 0o644))
	t.Setenv("DTI_R", "21")
	t.Setenv("SCAN_WORKERS", "4")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 21, cfg.DTIR, "environment beats app.env")
	assert.Equal(t, 12.5, cfg.TargetPercent)
	assert.Equal(t, 2*time.Hour, cfg.CacheTTL)
	assert.True(t, cfg.ForceCloseAtEnd)
	assert.Equal(t, 4, cfg.ScanWorkers)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name, key, val string
	}{
		{"unknown backend", "CACHE_BACKEND", "memcached"},
		{"no workers", "SCAN_WORKERS", "0"},
		{"no rows", "MIN_SCAN_ROWS", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadFrom(t.TempDir())
			assert.Error(t, err)
		})
	}
}
