package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrors_MatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("backtest AAPL: %w", &InsufficientDataError{Op: "backtest", Have: 1, Need: 2})
	assert.True(t, errors.Is(wrapped, ErrInsufficientData))
	assert.False(t, errors.Is(wrapped, ErrInvalidParameter))

	var ide *InsufficientDataError
	if assert.True(t, errors.As(wrapped, &ide)) {
		assert.Equal(t, 2, ide.Need)
	}

	assert.True(t, errors.Is(&InvalidParameterError{Name: "r", Value: 0}, ErrInvalidParameter))
	assert.True(t, errors.Is(&MisalignedSeriesError{}, ErrMisalignedSeries))
	assert.True(t, errors.Is(&MalformedRowError{Line: 3}, ErrMalformedRow))
}

func TestMalformedRowError_Message(t *testing.T) {
	assert.Equal(t, "line 4: close: not a number", (&MalformedRowError{Line: 4, Field: "close", Reason: "not a number"}).Error())
	assert.Equal(t, "line 7: duplicate date", (&MalformedRowError{Line: 7, Reason: "duplicate date"}).Error())
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(a, a))
	assert.Equal(t, 14, DaysBetween(a, a.AddDate(0, 0, 14)))
	// DST-free UTC dates, but tolerate sub-day drift
	assert.Equal(t, 1, DaysBetween(a, a.Add(23*time.Hour)))
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 10.0, PercentChange(100, 110), 1e-9)
	assert.InDelta(t, -5.0, PercentChange(200, 190), 1e-9)
}
