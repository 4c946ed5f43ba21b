package store

import (
	"context"

	"github.com/stevemurr/state-table-server/table"
)

// Hook forwards table deltas to a Store.
type Hook struct {
	store Store
}

// NewHook adapts s to table.Persister.
func NewHook(s Store) *Hook {
	return &Hook{store: s}
}

func (h *Hook) Persist(ctx context.Context, name string, delta table.Delta) error {
	_, err := h.store.Append(ctx, name, delta)
	return err
}
