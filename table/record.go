package table

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"

	"github.com/stevemurr/state-table-server/schema"
)

// Record is one row of a table. Stored records always carry an int64 "id".
type Record map[string]any

// ID returns the record identity.
func (r Record) ID() int64 {
	id, _ := r[schema.IDField].(int64)
	return id
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	return maps.Clone(r)
}

// IDRef distinguishes a record that names its identity from one that asks
// the table to assign it. The zero value requests auto-assignment.
type IDRef struct {
	id       int64
	explicit bool
}

// ExplicitID refers to a caller-chosen identity.
func ExplicitID(id int64) IDRef { return IDRef{id: id, explicit: true} }

// AutoID asks the table to assign an identity.
func AutoID() IDRef { return IDRef{} }

// Explicit returns the identity and whether one was supplied.
func (r IDRef) Explicit() (int64, bool) { return r.id, r.explicit }

func (r IDRef) String() string {
	if !r.explicit {
		return "auto"
	}
	return fmt.Sprintf("%d", r.id)
}

// Entry is a record as submitted by a caller: an identity reference plus the
// non-id fields.
type Entry struct {
	ID     IDRef
	Fields Record
}

// NewEntry splits a decoded document into an Entry. A present, non-null id
// must be an integer.
func NewEntry(doc map[string]any) (Entry, error) {
	fields := make(Record, len(doc))
	for k, v := range doc {
		if k != schema.IDField {
			fields[k] = v
		}
	}
	raw, ok := doc[schema.IDField]
	if !ok || raw == nil {
		return Entry{ID: AutoID(), Fields: fields}, nil
	}
	id, err := ParseID(raw)
	if err != nil {
		return Entry{}, err
	}
	return Entry{ID: ExplicitID(id), Fields: fields}, nil
}

// ParseID converts a decoded JSON value into a record id. Integral floats are
// accepted because generic JSON decoders produce them for every number.
func ParseID(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("id %q is not an integer: %w", n.String(), ErrInvalidInput)
		}
		return floatID(f)
	case float64:
		return floatID(n)
	default:
		return 0, fmt.Errorf("id %v is not an integer: %w", v, ErrInvalidInput)
	}
}

func floatID(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("id %v is not an integer: %w", f, ErrInvalidInput)
	}
	return int64(f), nil
}

func (e Entry) fieldSchema() *schema.Schema {
	return schema.Infer(e.Fields)
}

func (e Entry) record(id int64) Record {
	rec := make(Record, len(e.Fields)+1)
	for k, v := range e.Fields {
		rec[k] = v
	}
	rec[schema.IDField] = id
	return rec
}
