package model

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching across the engine.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInsufficientData = errors.New("insufficient data")
	ErrMisalignedSeries = errors.New("misaligned series")
	ErrMalformedRow     = errors.New("malformed row")
)

// InvalidParameterError reports a rejected strategy parameter.
type InvalidParameterError struct {
	Name   string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Name, e.Value, e.Reason)
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

// InsufficientDataError reports that an operation received fewer rows than
// its threshold. Need carries the violated threshold.
type InsufficientDataError struct {
	Op   string
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: have %d rows, need at least %d", e.Op, e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// MisalignedSeriesError reports parallel arrays of different lengths.
// It indicates a programming error in the caller.
type MisalignedSeriesError struct {
	Lengths map[string]int
}

func (e *MisalignedSeriesError) Error() string {
	return fmt.Sprintf("misaligned series: lengths %v", e.Lengths)
}

func (e *MisalignedSeriesError) Is(target error) bool { return target == ErrMisalignedSeries }

// MalformedRowError describes one dropped input row. It is collected by the
// normalizer and never propagated as a call failure.
type MalformedRowError struct {
	Line   int
	Field  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}

func (e *MalformedRowError) Is(target error) bool { return target == ErrMalformedRow }
