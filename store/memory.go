package store

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

// deepCopy returns a deep copy of a delta by round-tripping through JSON, so
// stored entries look exactly like the ones a durable backend would return.
func deepCopy(src map[string]any) (map[string]any, error) {
	if src == nil {
		return nil, nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	var dst map[string]any
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, err
	}
	return dst, nil
}

func (m *MemoryStore) Append(_ context.Context, collection string, delta map[string]any) (Entry, error) {
	cp, err := deepCopy(delta)
	if err != nil {
		return Entry{}, err
	}
	e := newEntry(collection, cp)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[collection] = append(m.entries[collection], e)
	return e, nil
}

func (m *MemoryStore) Entries(_ context.Context, collection string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.entries[collection]
	out := make([]Entry, 0, len(src))
	for _, e := range src {
		cp, err := deepCopy(e.Delta)
		if err != nil {
			return nil, err
		}
		e.Delta = cp
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) ListCollections(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.entries)), nil
}

func (m *MemoryStore) Close() error { return nil }
