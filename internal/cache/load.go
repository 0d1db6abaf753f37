package cache

import (
	"context"
	"fmt"
)

// LoadFunc fetches a fresh payload for key.
type LoadFunc func(ctx context.Context, key Key) ([]byte, Source, error)

// GetOrLoad serves key from c, loading it on a miss. A stale entry is
// revalidated through load; if that fails the stale entry is returned
// with a nil error. Cache read errors fall through to load.
func GetOrLoad(ctx context.Context, c Cache, key Key, load LoadFunc) (Entry, error) {
	cached, ok, err := c.Get(ctx, key)
	if err == nil && ok && !cached.Stale {
		return cached, nil
	}

	payload, src, loadErr := load(ctx, key)
	if loadErr != nil {
		if err == nil && ok {
			return cached, nil
		}
		return Entry{}, fmt.Errorf("load %s: %w", key, loadErr)
	}

	if c.Set(ctx, key, payload, src) == nil {
		if fresh, ok, err := c.Get(ctx, key); err == nil && ok {
			return fresh, nil
		}
	}
	// a failed write still returns the fresh payload
	return Entry{Payload: payload, Source: ParseSource(string(src))}, nil
}
