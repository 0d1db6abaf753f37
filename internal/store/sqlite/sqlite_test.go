package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dti-backtester/internal/model"
)

func openTest(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dti.db")
	w, err := New(WriterConfig{DBPath: path}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	r, err := NewReader(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func series(symbol string, n int) model.Series {
	s := model.Series{Symbol: symbol}
	for i := 0; i < n; i++ {
		b := model.PriceBar{Date: day(i), Open: 10, High: 11, Low: 9, Close: 10 + float64(i)}
		if i%2 == 0 {
			v := float64(1000 + i)
			b.Volume = &v
		}
		s.Bars = append(s.Bars, b)
	}
	return s
}

func run(id, symbol string, created time.Time, winRate float64, active bool) model.BacktestRun {
	r := model.BacktestRun{
		ID:          id,
		Symbol:      symbol,
		CreatedAt:   created,
		Params:      model.StrategyParams{R: 14, S: 10, U: 5, TargetPercent: 8, StopLossPercent: 5},
		Bars:        40,
		DroppedRows: 2,
		Trades: []model.Trade{
			{EntryDate: day(1), EntryPrice: 100, ExitDate: day(5), ExitPrice: 108, ExitReason: model.ExitTarget, PnLPercent: 8, DurationDays: 4, EntryIndex: 1, ExitIndex: 5},
			{EntryDate: day(8), EntryPrice: 100, ExitDate: day(9), ExitPrice: 95, ExitReason: model.ExitStopLoss, PnLPercent: -5, DurationDays: 1, EntryIndex: 8, ExitIndex: 9},
		},
		Metrics: model.PerformanceMetrics{TotalTrades: 2, WinCount: 1, LossCount: 1, WinRate: winRate, TotalReturnPercent: 2.6},
	}
	if active {
		r.Active = &model.OpenPosition{
			EntryDate: day(20), EntryPrice: 50, EntryIndex: 20,
			LastDate: day(39), LastPrice: 52, UnrealizedPnLPercent: 4, DurationDays: 19,
			StopLossPrice: 47.5, TargetPrice: 54,
		}
	}
	return r
}

func TestSeries_RoundTrip(t *testing.T) {
	ctx := context.Background()
	w, r := openTest(t)

	in := series("INFY", 10)
	require.NoError(t, w.SaveSeries(ctx, in))

	got, err := r.ReadSeries(ctx, "INFY")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	// saving again replaces, not appends
	require.NoError(t, w.SaveSeries(ctx, series("INFY", 3)))
	got, err = r.ReadSeries(ctx, "INFY")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())

	_, err = r.ReadSeries(ctx, "NONE")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRun_RoundTrip(t *testing.T) {
	ctx := context.Background()
	w, r := openTest(t)

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := run("run-1", "TCS", created, 0.5, true)
	require.NoError(t, w.SaveRun(ctx, in))

	got, err := r.LatestRun(ctx, "TCS")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, in, *got)

	none, err := r.LatestRun(ctx, "NONE")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRun_LatestWins(t *testing.T) {
	ctx := context.Background()
	w, r := openTest(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, w.SaveRun(ctx, run("old", "TCS", created, 0.5, true)))
	second := run("new", "TCS", created, 0.5, false)
	second.Trades = []model.Trade{}
	require.NoError(t, w.SaveRun(ctx, second))

	got, err := r.LatestRun(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)
	assert.Empty(t, got.Trades)
	assert.Nil(t, got.Active)

	// the older run's open position is superseded
	act, err := r.ActivePositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, act)

	err = w.SaveRun(ctx, second)
	assert.Error(t, err, "duplicate run id")
}

func TestActivePositions_Ordering(t *testing.T) {
	ctx := context.Background()
	w, r := openTest(t)
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, w.SaveRun(ctx, run("1", "BBB", created, 0.5, true)))
	require.NoError(t, w.SaveRun(ctx, run("2", "AAA", created, 0.5, true)))
	require.NoError(t, w.SaveRun(ctx, run("3", "CCC", created, 0.9, true)))
	require.NoError(t, w.SaveRun(ctx, run("4", "DDD", created, 1.0, false)))

	act, err := r.ActivePositions(ctx)
	require.NoError(t, err)
	require.Len(t, act, 3)
	assert.Equal(t, []string{"CCC", "AAA", "BBB"}, []string{act[0].Symbol, act[1].Symbol, act[2].Symbol})
	assert.Equal(t, "3", act[0].RunID)
	assert.Equal(t, 0.9, act[0].WinRate)
	assert.Equal(t, 2, act[0].Trades)
	assert.Equal(t, 2.6, act[0].TotalReturnPercent)
	assert.Equal(t, 52.0, act[0].Position.LastPrice)
	assert.Equal(t, day(20), act[0].Position.EntryDate)
}
