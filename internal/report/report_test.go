package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dti-backtester/internal/model"
	"dti-backtester/internal/scanner"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestWriteTrades(t *testing.T) {
	trades := []model.Trade{
		{EntryDate: day(2), EntryPrice: 101, ExitDate: day(10), ExitPrice: 109.3685,
			ExitReason: model.ExitTarget, PnLPercent: 8.285643564, DurationDays: 8},
		{EntryDate: day(12), EntryPrice: 100, ExitDate: day(15), ExitPrice: 95,
			ExitReason: model.ExitStopLoss, PnLPercent: -5, DurationDays: 3},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, "AAA", trades))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "symbol,entry_date,entry_price,exit_date,exit_price,exit_reason,pnl_percent,duration_days", lines[0])
	assert.Equal(t, "AAA,2024-01-02,101,2024-01-10,109.3685,target,8.2856,8", lines[1])
	assert.Equal(t, "AAA,2024-01-12,100,2024-01-15,95,stopLoss,-5,3", lines[2])

	var back []TradeRecord
	require.NoError(t, gocsv.UnmarshalString(buf.String(), &back))
	assert.Equal(t, Trades("AAA", trades), back)
}

func TestWriteTrades_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, "AAA", nil))
	assert.True(t, strings.HasPrefix(buf.String(), "symbol,entry_date"))
}

func TestWriteOpportunities(t *testing.T) {
	ops := []scanner.Opportunity{{
		Symbol: "BBB",
		Name:   "Bee Corp",
		Position: model.OpenPosition{
			EntryDate: day(3), EntryPrice: 50, LastDate: day(9), LastPrice: 52,
			UnrealizedPnLPercent: 4, DurationDays: 6, StopLossPrice: 47.5, TargetPrice: 54,
		},
		WinRate:            0.66666666,
		TotalTrades:        3,
		TotalReturnPercent: 12.5,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteOpportunities(&buf, ops))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "BBB,Bee Corp,2024-01-03,50,2024-01-09,52,4,6,47.5,54,0.6667,3,12.5", lines[1])
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.2346, round(1.23456))
	assert.Equal(t, -1.2346, round(-1.23456))
	assert.Equal(t, 0.0, round(0))
}
