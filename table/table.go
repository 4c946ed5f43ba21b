// Package table holds the in-memory state engine: schema-enforcing record
// tables and the registry that names them.
package table

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/stevemurr/state-table-server/schema"
)

// Table is one named collection of schema-homogeneous records. All methods
// are safe for concurrent use; operations on different tables never contend.
type Table struct {
	name      string
	maxLength int // 0 means unbounded
	persist   Persister
	logger    *slog.Logger

	mu      sync.RWMutex
	records map[int64]Record
	schema  *schema.Schema
	version uint64
}

// Info describes a table at one point in time.
type Info struct {
	Name          string   `json:"name"`
	MaxLength     *int     `json:"max_length"`
	CurrentLength int      `json:"current_length"`
	Schema        []string `json:"schema"`
	Version       uint64   `json:"version"`
}

// ReplaceResult reports how many records a replace kept and how many were cut
// by the capacity bound.
type ReplaceResult struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// New creates an empty table without a schema. maxLength <= 0 leaves the
// table unbounded. A nil persister discards deltas.
func New(name string, maxLength int, p Persister, logger *slog.Logger) *Table {
	if p == nil {
		p = discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxLength < 0 {
		maxLength = 0
	}
	return &Table{
		name:      name,
		maxLength: maxLength,
		persist:   p,
		logger:    logger.With("table", name),
		records:   make(map[int64]Record),
	}
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// MaxLength returns the capacity bound and whether one is set.
func (t *Table) MaxLength() (int, bool) { return t.maxLength, t.maxLength > 0 }

// ReplaceAll swaps the whole record set. The batch is validated in full
// before anything is committed; on error the table is untouched.
func (t *Table) ReplaceAll(ctx context.Context, entries []Entry) (ReplaceResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(entries) == 0 {
		t.records = make(map[int64]Record)
		t.commit(ctx, "replace_all", setStateDelta(0, 0))
		return ReplaceResult{}, nil
	}

	dropped := 0
	if t.maxLength > 0 && len(entries) > t.maxLength {
		dropped = len(entries) - t.maxLength
		entries = entries[:t.maxLength]
	}

	sch := t.schema
	first := entries[0].fieldSchema()
	if sch == nil {
		sch = first
	} else if !sch.Equal(first) {
		missing, extra := sch.Diff(first)
		return ReplaceResult{}, &SchemaMismatchError{Op: "SET_STATE", Missing: missing, Extra: extra}
	}

	// Ids resolve in input order: an auto id takes the smallest id not yet
	// claimed, and an explicit id may not repeat any earlier one.
	claimed := make(map[int64]struct{}, len(entries))
	next := make(map[int64]Record, len(entries))
	var nextID int64 = 1
	for i, e := range entries {
		id, ok := e.ID.Explicit()
		if ok {
			if _, dup := claimed[id]; dup {
				return ReplaceResult{}, errAlreadyExists("duplicate id %d in SET_STATE", id)
			}
		} else {
			for {
				if _, taken := claimed[nextID]; !taken {
					break
				}
				nextID++
			}
			id = nextID
		}
		claimed[id] = struct{}{}
		if candidate := e.fieldSchema(); !sch.Equal(candidate) {
			missing, extra := sch.Diff(candidate)
			return ReplaceResult{}, &SchemaMismatchError{
				Op:      fmt.Sprintf("SET_STATE record %d", i),
				Missing: missing,
				Extra:   extra,
			}
		}
		next[id] = e.record(id)
	}

	t.schema = sch
	t.records = next
	t.commit(ctx, "replace_all", setStateDelta(len(next), dropped))
	return ReplaceResult{Accepted: len(next), Dropped: dropped}, nil
}

// Create inserts a new record and returns its id. An auto-assigned id is one
// past the largest id currently stored.
func (t *Table) Create(ctx context.Context, e Entry) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	candidate := e.fieldSchema()
	if t.schema != nil && !t.schema.Equal(candidate) {
		missing, extra := t.schema.Diff(candidate)
		return 0, &SchemaMismatchError{Op: "CREATE_RECORD", Missing: missing, Extra: extra}
	}
	if t.maxLength > 0 && len(t.records) >= t.maxLength {
		return 0, fmt.Errorf("state %q holds %d records: %w", t.name, t.maxLength, ErrCapacityExceeded)
	}

	id, explicit := e.ID.Explicit()
	if explicit {
		if _, exists := t.records[id]; exists {
			return 0, errAlreadyExists("record id %d", id)
		}
	} else {
		id = t.maxID() + 1
	}

	if t.schema == nil {
		t.schema = candidate
	}
	rec := e.record(id)
	t.records[id] = rec
	t.commit(ctx, "create", createRecordDelta(rec))
	return id, nil
}

// Put stores fields under id, creating or overwriting the record. Any id in
// fields is ignored in favor of the target id.
func (t *Table) Put(ctx context.Context, id int64, fields Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{ID: ExplicitID(id), Fields: withoutID(fields)}
	candidate := e.fieldSchema()
	if t.schema != nil && !t.schema.Equal(candidate) {
		missing, extra := t.schema.Diff(candidate)
		return &SchemaMismatchError{Op: "SET_RECORD", Missing: missing, Extra: extra}
	}
	if _, exists := t.records[id]; !exists && t.maxLength > 0 && len(t.records) >= t.maxLength {
		return fmt.Errorf("state %q holds %d records: %w", t.name, t.maxLength, ErrCapacityExceeded)
	}

	if t.schema == nil {
		t.schema = candidate
	}
	rec := e.record(id)
	t.records[id] = rec
	t.commit(ctx, "put", setRecordDelta(rec))
	return nil
}

// Patch merges changes into an existing record. It returns false without
// error when the record does not exist. The id field in changes is ignored.
func (t *Table) Patch(ctx context.Context, id int64, changes Record) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.records[id]
	if !ok {
		return false, nil
	}
	if t.schema == nil {
		return false, fmt.Errorf("cannot patch state %q: %w", t.name, ErrSchemaUndefined)
	}

	changes = withoutID(changes)
	if unknown := t.schema.Unknown(changes); len(unknown) > 0 {
		return false, &UnknownFieldError{Fields: unknown}
	}

	rec := current.Clone()
	for k, v := range changes {
		rec[k] = v
	}
	t.records[id] = rec
	t.commit(ctx, "patch", patchRecordDelta(id, changes))
	return true, nil
}

// Delete removes a record and reports whether it existed.
func (t *Table) Delete(ctx context.Context, id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[id]; !ok {
		return false
	}
	delete(t.records, id)
	t.commit(ctx, "delete", deleteRecordDelta(id))
	return true
}

// Get returns a copy of the record, or false if absent.
func (t *Table) Get(id int64) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// List returns copies of every record ordered by id.
func (t *Table) List() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(t.records))
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.records[id].Clone())
	}
	return out
}

// Schema returns the sorted schema field names, or nil before the first write.
func (t *Table) Schema() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.schema == nil {
		return nil
	}
	return t.schema.Fields()
}

// Version returns the mutation counter.
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Len returns the number of stored records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Describe returns a consistent snapshot of the table metadata.
func (t *Table) Describe() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()

	info := Info{
		Name:          t.name,
		CurrentLength: len(t.records),
		Version:       t.version,
	}
	if t.maxLength > 0 {
		n := t.maxLength
		info.MaxLength = &n
	}
	if t.schema != nil {
		info.Schema = t.schema.Fields()
	}
	return info
}

// commit bumps the version and hands the delta to the persister. Callers
// hold the write lock so deltas reach the persister in version order.
func (t *Table) commit(ctx context.Context, op string, delta Delta) {
	t.version++
	t.logger.Debug("mutation committed", "op", op, "version", t.version)
	// The delta is already committed; a cancelled request must not drop it.
	if err := t.persist.Persist(context.WithoutCancel(ctx), t.name, delta); err != nil {
		t.logger.Warn("persist failed", "op", op, "version", t.version, "error", err)
	}
}

func (t *Table) maxID() int64 {
	if len(t.records) == 0 {
		return 0
	}
	return slices.Max(slices.Collect(maps.Keys(t.records)))
}

func withoutID(fields Record) Record {
	if _, ok := fields[schema.IDField]; !ok {
		return fields
	}
	out := fields.Clone()
	delete(out, schema.IDField)
	return out
}
