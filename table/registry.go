package table

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Registry maps table names to tables. Every table it creates shares the
// registry's persister and logger.
type Registry struct {
	persist Persister
	logger  *slog.Logger

	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry creates an empty registry. A nil persister discards deltas.
func NewRegistry(p Persister, logger *slog.Logger) *Registry {
	if p == nil {
		p = discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		persist: p,
		logger:  logger,
		tables:  make(map[string]*Table),
	}
}

// Create registers a new empty table. maxLength <= 0 leaves it unbounded.
func (r *Registry) Create(name string, maxLength int) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[name]; exists {
		return nil, errAlreadyExists("state %q", name)
	}
	t := New(name, maxLength, r.persist, r.logger)
	r.tables[name] = t
	r.logger.Info("state created", "table", name, "max_length", maxLength)
	return t, nil
}

// Get looks up a table by name.
func (r *Registry) Get(name string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[name]
	if !ok {
		return nil, errNotFound("state %q", name)
	}
	return t, nil
}

// Delete discards a table and all its records. Nothing is persisted.
// References obtained from Get before the delete stay usable and keep
// emitting deltas under the old name.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tables[name]; !ok {
		return errNotFound("state %q", name)
	}
	delete(r.tables, name)
	r.logger.Info("state deleted", "table", name)
	return nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tables))
}
