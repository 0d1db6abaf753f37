// Package cache holds fetched price payloads keyed by (symbol, period,
// interval). Entries older than the TTL are still served but flagged Stale
// so the caller can revalidate them.
package cache

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL is the age after which an entry is stale.
const DefaultTTL = 24 * time.Hour

// Source records where a payload came from.
type Source string

const (
	SourceCSV     Source = "csv"
	SourceAPI     Source = "api"
	SourceUnknown Source = "unknown"
)

// ParseSource maps unknown strings to SourceUnknown.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceCSV, SourceAPI:
		return Source(s)
	}
	return SourceUnknown
}

// Key identifies one cached payload.
type Key struct {
	Symbol   string
	Period   string
	Interval string
}

// String renders the key as symbol_period_interval.
func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Symbol, k.Period, k.Interval)
}

// Entry is a cached payload with its metadata.
type Entry struct {
	Payload  []byte
	StoredAt time.Time
	Source   Source
	Stale    bool
}

// Stats counts entries, in total and per source.
type Stats struct {
	Total    int
	BySource map[Source]int
}

// Cache is implemented by Memory and by the Redis store.
type Cache interface {
	Get(ctx context.Context, key Key) (Entry, bool, error)
	Set(ctx context.Context, key Key, payload []byte, src Source) error
	Delete(ctx context.Context, key Key) error
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
}

// Clock abstracts the wall clock for TTL checks.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// IsStale reports whether an entry stored at storedAt is older than ttl at now.
func IsStale(storedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(storedAt) > ttl
}
