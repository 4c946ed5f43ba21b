package store_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/state-table-server/store"
	"github.com/stevemurr/state-table-server/table"
)

// runStoreTests runs a common test suite against any durable Store implementation.
func runStoreTests(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("Entries empty", func(t *testing.T) {
		entries, err := s.Entries(ctx, "nothing")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Append and Entries keep order", func(t *testing.T) {
		first, err := s.Append(ctx, "users", map[string]any{"create_record": map[string]any{"id": 1, "name": "a"}})
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, "users", first.Collection)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := s.Append(ctx, "users", map[string]any{"delete_record": 1})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		entries, err := s.Entries(ctx, "users")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, first.ID, entries[0].ID)
		assert.Equal(t, second.ID, entries[1].ID)
		assert.Equal(t, map[string]any{"create_record": map[string]any{"id": float64(1), "name": "a"}}, entries[0].Delta)
		assert.Equal(t, map[string]any{"delete_record": float64(1)}, entries[1].Delta)
		assert.Equal(t, "users", entries[1].Collection)
	})

	t.Run("Collections are isolated", func(t *testing.T) {
		_, err := s.Append(ctx, "orders", map[string]any{"set_state": 0, "dropped": 0})
		require.NoError(t, err)

		entries, err := s.Entries(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, entries, 1)

		entries, err = s.Entries(ctx, "users")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("ListCollections", func(t *testing.T) {
		names, err := s.ListCollections(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, "users")
		assert.Contains(t, names, "orders")
		assert.NotContains(t, names, "nothing")
	})
}

func TestMemoryStore(t *testing.T) {
	s := store.NewMemoryStore()
	runStoreTests(t, s)
}

func TestJsonFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewJsonFileStore(dir)
	require.NoError(t, err)
	runStoreTests(t, s)
}

func TestSqliteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewSqliteStore(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer s.Close()
	runStoreTests(t, s)
}

func TestSqliteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := store.NewSqliteStore(ctx, path)
	require.NoError(t, err)
	_, err = s.Append(ctx, "users", map[string]any{"delete_record": 3})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.NewSqliteStore(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Entries(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STATETABLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STATETABLE_TEST_POSTGRES_DSN not set")
	}
	s, err := store.NewPostgresStore(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	runStoreTests(t, s)
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for _, backend := range []string{"json", "sqlite", "memory", "log", ""} {
		t.Run(backend, func(t *testing.T) {
			s, err := store.New(ctx, backend, store.Options{DataDir: filepath.Join(dir, backend)})
			require.NoError(t, err)
			require.NoError(t, s.Close())
		})
	}

	t.Run("postgres without dsn", func(t *testing.T) {
		_, err := store.New(ctx, "postgres", store.Options{})
		require.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := store.New(ctx, "redis", store.Options{DataDir: dir})
		require.Error(t, err)
	})
}

func TestJsonFileStoreEscapesNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := store.NewJsonFileStore(dir)
	require.NoError(t, err)

	_, err = s.Append(ctx, "a/b", map[string]any{"delete_record": 1})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "a%2Fb.jsonl"))
	require.NoError(t, err)

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, names)
}

func TestLogStore(t *testing.T) {
	var buf bytes.Buffer
	s := store.NewLogStore(slog.New(slog.NewTextHandler(&buf, nil)))

	e, err := s.Append(context.Background(), "users", map[string]any{"delete_record": 4})
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Contains(t, buf.String(), "state=users")
	assert.Contains(t, buf.String(), "delete_record")
}

func TestHookRecordsTableDeltas(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := table.NewRegistry(store.NewHook(s), logger)

	tbl, err := reg.Create("users", 0)
	require.NoError(t, err)

	id, err := tbl.Create(ctx, table.Entry{ID: table.AutoID(), Fields: table.Record{"name": "a"}})
	require.NoError(t, err)
	_, err = tbl.Patch(ctx, id, table.Record{"name": "b"})
	require.NoError(t, err)
	require.NoError(t, tbl.Put(ctx, id, table.Record{"name": "c"}))
	tbl.Delete(ctx, id)
	_, err = tbl.ReplaceAll(ctx, nil)
	require.NoError(t, err)

	entries, err := s.Entries(ctx, "users")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, map[string]any{"create_record": map[string]any{"id": float64(1), "name": "a"}}, entries[0].Delta)
	assert.Equal(t, map[string]any{"patch_record": map[string]any{"id": float64(1), "name": "b"}}, entries[1].Delta)
	assert.Equal(t, map[string]any{"set_record": map[string]any{"id": float64(1), "name": "c"}}, entries[2].Delta)
	assert.Equal(t, map[string]any{"delete_record": float64(1)}, entries[3].Delta)
	assert.Equal(t, map[string]any{"set_state": float64(0), "dropped": float64(0)}, entries[4].Delta)

	require.NoError(t, reg.Delete("users"))
	entries, err = s.Entries(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestHookPersistsAfterRequestCancelled(t *testing.T) {
	s, err := store.NewSqliteStore(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tbl := table.New("users", 0, store.NewHook(s), logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id, err := tbl.Create(ctx, table.Entry{ID: table.AutoID(), Fields: table.Record{"name": "a"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	entries, err := s.Entries(context.Background(), "users")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]any{"create_record": map[string]any{"id": float64(1), "name": "a"}}, entries[0].Delta)
}
