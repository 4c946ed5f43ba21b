// Package store defines the persistence backends that record table deltas.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one persisted delta.
type Entry struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Delta      map[string]any `json:"delta"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store is the interface that all backing stores must implement. It keeps an
// append-only change log per named collection. The server only appends;
// Entries and ListCollections exist for inspection and replay tooling.
type Store interface {
	// Append records a delta for a collection and returns the stored entry.
	Append(ctx context.Context, collection string, delta map[string]any) (Entry, error)

	// Entries returns every entry of a collection in append order.
	Entries(ctx context.Context, collection string) ([]Entry, error)

	// ListCollections returns the sorted names of collections that have entries.
	ListCollections(ctx context.Context) ([]string, error)

	// Close releases the backend's resources.
	Close() error
}

func newEntry(collection string, delta map[string]any) Entry {
	return Entry{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Collection: collection,
		Delta:      delta,
		CreatedAt:  time.Now().UTC(),
	}
}
