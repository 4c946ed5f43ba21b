package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
)

// SqliteStore stores all collections in a single SQLite database. The
// "sqlite3" driver must be registered by the caller.
//
// Tables:
//
//	changes(seq, id, collection, delta, created_at)  ordered by seq
type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(ctx context.Context, dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer keeps append order equal to seq order.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db, goose.DialectSQLite3, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Append(ctx context.Context, collection string, delta map[string]any) (Entry, error) {
	e := newEntry(collection, delta)
	b, err := json.Marshal(delta)
	if err != nil {
		return Entry{}, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO changes (id, collection, delta, created_at) VALUES (?, ?, ?, ?)`,
		e.ID, collection, string(b), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append %s: %w", collection, err)
	}
	return e, nil
}

func (s *SqliteStore) Entries(ctx context.Context, collection string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, delta, created_at FROM changes WHERE collection = ? ORDER BY seq",
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var id, raw, created string
		if err := rows.Scan(&id, &raw, &created); err != nil {
			return nil, err
		}
		e := Entry{ID: id, Collection: collection}
		if err := json.Unmarshal([]byte(raw), &e.Delta); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", id, err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", id, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SqliteStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM changes ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
