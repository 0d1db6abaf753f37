package redis

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"dti-backtester/internal/cache"
)

const defaultMaxPending = 10000

type pendingSet struct {
	key     cache.Key
	payload []byte
	source  cache.Source
}

// BufferedCache wraps a Cache so that writes rejected by an open circuit
// are buffered locally and replayed when the circuit closes. Reads are not
// buffered.
type BufferedCache struct {
	*Cache

	mu      sync.Mutex
	pending []pendingSet
	maxBuf  int

	// Callbacks
	OnBuffer func()          // a write was buffered
	OnFlush  func(count int) // buffered writes were replayed
}

// NewBufferedCache wraps c. Writes beyond maxPending drop the oldest.
func NewBufferedCache(c *Cache, maxPending int) *BufferedCache {
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	bc := &BufferedCache{Cache: c, maxBuf: maxPending}

	prev := c.cb.OnStateChange
	c.cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			// the breaker lock is held here; replay outside it
			go bc.Flush(context.Background())
		}
	}
	return bc
}

// Set writes through the breaker, buffering the write if the circuit is open.
func (bc *BufferedCache) Set(ctx context.Context, key cache.Key, payload []byte, src cache.Source) error {
	err := bc.Cache.Set(ctx, key, payload, src)
	if errors.Is(err, ErrCircuitOpen) {
		bc.buffer(pendingSet{key: key, payload: append([]byte(nil), payload...), source: src})
		return nil
	}
	return err
}

func (bc *BufferedCache) buffer(p pendingSet) {
	bc.mu.Lock()
	if len(bc.pending) >= bc.maxBuf {
		bc.pending = bc.pending[1:]
	}
	bc.pending = append(bc.pending, p)
	bc.mu.Unlock()

	if bc.OnBuffer != nil {
		bc.OnBuffer()
	}
}

// Flush replays buffered writes and returns how many succeeded. Writes
// that fail again are re-buffered.
func (bc *BufferedCache) Flush(ctx context.Context) int {
	bc.mu.Lock()
	toFlush := bc.pending
	bc.pending = nil
	bc.mu.Unlock()
	if len(toFlush) == 0 {
		return 0
	}

	flushed := 0
	for _, p := range toFlush {
		if err := bc.Cache.Set(ctx, p.key, p.payload, p.source); err != nil {
			bc.buffer(p)
			continue
		}
		flushed++
	}

	bc.log.Info("flushed buffered cache writes", zap.Int("count", flushed), zap.Int("pending", bc.PendingCount()))
	if bc.OnFlush != nil {
		bc.OnFlush(flushed)
	}
	return flushed
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bc *BufferedCache) PendingCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

var _ cache.Cache = (*BufferedCache)(nil)
