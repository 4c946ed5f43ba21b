package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const logExt = ".jsonl"

// JsonFileStore stores each collection as a JSON-lines file on disk, one
// entry per line.
//
// Layout:
//
//	data_dir/
//	  users.jsonl     # "users" collection
//	  a%2Fb.jsonl     # "a/b" collection (path-escaped)
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, url.PathEscape(collection)+logExt)
}

func (s *JsonFileStore) Append(_ context.Context, collection string, delta map[string]any) (Entry, error) {
	e := newEntry(collection, delta)
	b, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.collectionPath(collection), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Entry{}, err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return Entry{}, err
	}
	return e, f.Close()
}

func (s *JsonFileStore) Entries(_ context.Context, collection string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, err := os.Open(s.collectionPath(collection))
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	entries := []Entry{}
	dec := json.NewDecoder(f)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("read %s: %w", collection, err)
		}
		entries = append(entries, e)
	}
}

func (s *JsonFileStore) ListCollections(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), logExt))
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) Close() error { return nil }
