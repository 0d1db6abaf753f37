package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dti-backtester/internal/model"
)

var defaultParams = model.StrategyParams{R: 14, S: 10, U: 5, TargetPercent: 8, StopLossPercent: 5}

// riseThenFall builds 20 days rising 1%/day followed by 20 days falling 1%/day.
func riseThenFall() model.Series {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.PriceBar, 40)
	c := 100.0
	for i := range bars {
		switch {
		case i == 0:
		case i < 20:
			c *= 1.01
		default:
			c *= 0.99
		}
		bars[i] = model.PriceBar{
			Date:  start.AddDate(0, 0, i),
			Open:  c,
			High:  c * 1.01,
			Low:   c * 0.99,
			Close: c,
		}
	}
	return model.Series{Symbol: "E2E", Bars: bars}
}

func TestAnalyze_RiseThenFall(t *testing.T) {
	a, err := Analyze("E2E", riseThenFall(), defaultParams)
	require.NoError(t, err)

	assert.Equal(t, 40, a.Indicators.Len())
	require.Len(t, a.Completed, 1)
	assert.Nil(t, a.Active)

	tr := a.Completed[0]
	assert.Contains(t, []model.ExitReason{model.ExitTarget, model.ExitStopLoss, model.ExitSignal}, tr.ExitReason)
	assert.True(t, tr.EntryDate.Before(tr.ExitDate))

	// DTI turns positive on day 1 and the trade rides the rise to the 8% target
	assert.Equal(t, model.ExitTarget, tr.ExitReason)
	assert.Equal(t, 1, tr.EntryIndex)
	assert.Equal(t, 9, tr.ExitIndex)
	assert.InDelta(t, 101.0, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 100*math.Pow(1.01, 9), tr.ExitPrice, 1e-9)
	assert.InDelta(t, (math.Pow(1.01, 8)-1)*100, tr.PnLPercent, 1e-9)

	assert.Equal(t, 1, a.Metrics.TotalTrades)
	assert.Equal(t, 1.0, a.Metrics.WinRate)
	assert.InDelta(t, tr.PnLPercent, a.Metrics.TotalReturnPercent, 1e-9)

	out := a.Outcome()
	assert.Equal(t, model.OutcomeCompleted, out.Kind)
	require.NotNil(t, out.Trade)
	assert.Nil(t, out.Position)
}

func TestAnalyze_EndsInPosition(t *testing.T) {
	s := riseThenFall()
	s.Bars = s.Bars[:6]

	a, err := Analyze("E2E", s, defaultParams)
	require.NoError(t, err)
	assert.Empty(t, a.Completed)
	require.NotNil(t, a.Active)
	assert.Equal(t, 1, a.Active.EntryIndex)

	out := a.Outcome()
	assert.Equal(t, model.OutcomeActive, out.Kind)
	assert.Same(t, a.Active, out.Position)
	assert.Equal(t, "active", out.Kind.String())

	p := defaultParams
	p.ForceCloseAtEnd = true
	a, err = Analyze("E2E", s, p)
	require.NoError(t, err)
	assert.Nil(t, a.Active)
	require.Len(t, a.Completed, 1)
	assert.Equal(t, model.ExitEndOfData, a.Completed[0].ExitReason)
}

func TestAnalyze_NoTrades(t *testing.T) {
	s := riseThenFall()
	for i := range s.Bars {
		s.Bars[i].High, s.Bars[i].Low, s.Bars[i].Close = 50, 50, 50
	}
	a, err := Analyze("FLAT", s, defaultParams)
	require.NoError(t, err)
	assert.Empty(t, a.Completed)
	assert.Equal(t, model.OutcomeNone, a.Outcome().Kind)
	assert.Equal(t, model.PerformanceMetrics{}, a.Metrics)
}

func TestAnalyze_Errors(t *testing.T) {
	s := riseThenFall()

	_, err := Analyze("X", model.Series{Bars: s.Bars[:1]}, defaultParams)
	assert.True(t, errors.Is(err, model.ErrInsufficientData))

	_, err = Analyze("X", model.Series{}, defaultParams)
	assert.True(t, errors.Is(err, model.ErrInsufficientData))

	for _, mutate := range []func(*model.StrategyParams){
		func(p *model.StrategyParams) { p.R = 0 },
		func(p *model.StrategyParams) { p.S = -1 },
		func(p *model.StrategyParams) { p.U = 0 },
		func(p *model.StrategyParams) { p.TargetPercent = 0 },
		func(p *model.StrategyParams) { p.StopLossPercent = -5 },
	} {
		p := defaultParams
		mutate(&p)
		_, err := Analyze("X", s, p)
		var ipe *model.InvalidParameterError
		assert.True(t, errors.As(err, &ipe), "params %+v", p)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	a, err := Analyze("E2E", riseThenFall(), defaultParams)
	require.NoError(t, err)
	b, err := Analyze("E2E", riseThenFall(), defaultParams)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestToRun(t *testing.T) {
	a, err := Analyze("E2E", riseThenFall(), defaultParams)
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("IST", 19800))
	run := a.ToRun(3, now)

	_, err = uuid.Parse(run.ID)
	assert.NoError(t, err)
	assert.Equal(t, "E2E", run.Symbol)
	assert.Equal(t, now.UTC(), run.CreatedAt)
	assert.Equal(t, 40, run.Bars)
	assert.Equal(t, 3, run.DroppedRows)
	assert.Equal(t, a.Completed, run.Trades)
	assert.Equal(t, a.Metrics, run.Metrics)
	assert.Equal(t, defaultParams, run.Params)

	assert.NotEqual(t, run.ID, a.ToRun(3, now).ID)
}
