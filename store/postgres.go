package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresStore keeps the change log in a PostgreSQL "changes" table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn, verifies the connection, and applies
// migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrate(ctx, db, goose.DialectPostgres, "postgres"); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, collection string, delta map[string]any) (Entry, error) {
	e := newEntry(collection, delta)
	b, err := json.Marshal(delta)
	if err != nil {
		return Entry{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO changes (id, collection, delta, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, collection, string(b), e.CreatedAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append %s: %w", collection, err)
	}
	return e, nil
}

func (s *PostgresStore) Entries(ctx context.Context, collection string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, delta::text, created_at FROM changes WHERE collection = $1 ORDER BY seq`,
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var raw string
		e := Entry{Collection: collection}
		if err := rows.Scan(&e.ID, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Delta); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", e.ID, err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT collection FROM changes ORDER BY collection`)
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
