package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	payload  []byte
	storedAt time.Time
	source   Source
}

// Memory is an in-process Cache. It never evicts; stale entries stay
// until overwritten, deleted or cleared.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   Clock
	entries map[Key]memEntry
}

// NewMemory creates an empty cache. A nil clock means SystemClock and a
// non-positive ttl means DefaultTTL.
func NewMemory(ttl time.Duration, clock Clock) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Memory{ttl: ttl, clock: clock, entries: make(map[Key]memEntry)}
}

func (m *Memory) Get(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false, nil
	}
	return Entry{
		Payload:  append([]byte(nil), e.payload...),
		StoredAt: e.storedAt,
		Source:   e.source,
		Stale:    IsStale(e.storedAt, m.clock.Now(), m.ttl),
	}, true, nil
}

func (m *Memory) Set(_ context.Context, key Key, payload []byte, src Source) error {
	e := memEntry{
		payload:  append([]byte(nil), payload...),
		storedAt: m.clock.Now(),
		source:   ParseSource(string(src)),
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[Key]memEntry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Total: len(m.entries), BySource: make(map[Source]int)}
	for _, e := range m.entries {
		st.BySource[e.source]++
	}
	return st, nil
}
