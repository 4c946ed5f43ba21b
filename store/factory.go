package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Options carries backend-specific settings for New.
type Options struct {
	DataDir     string
	PostgresDSN string
	Logger      *slog.Logger
}

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"     - JSON-lines files in DataDir (default)
//	"sqlite"   - SQLite database at DataDir/state.db
//	"postgres" - PostgreSQL at PostgresDSN
//	"memory"   - In-memory (ephemeral, for testing)
//	"log"      - structured log lines only
func New(ctx context.Context, backend string, opts Options) (Store, error) {
	switch backend {
	case "json", "":
		return NewJsonFileStore(opts.DataDir)
	case "sqlite":
		return NewSqliteStore(ctx, filepath.Join(opts.DataDir, "state.db"))
	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, errors.New("postgres backend requires a DSN")
		}
		return NewPostgresStore(ctx, opts.PostgresDSN)
	case "memory":
		return NewMemoryStore(), nil
	case "log":
		return NewLogStore(opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, postgres, memory, log)", backend)
	}
}

// Backends lists the names accepted by New.
var Backends = []string{"json", "sqlite", "postgres", "memory", "log"}
