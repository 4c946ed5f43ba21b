// Package schema provides the field-name schema shared by every record of a table.
package schema

import (
	"maps"
	"slices"
	"strings"
)

// IDField is the identity field every schema carries.
const IDField = "id"

// Schema is an unordered set of field names. The zero value is an empty
// schema; a nil *Schema means "not yet defined".
type Schema struct {
	fields map[string]struct{}
}

// Of builds a schema from the given field names plus the implicit id field.
func Of(names ...string) *Schema {
	s := &Schema{fields: make(map[string]struct{}, len(names)+1)}
	s.fields[IDField] = struct{}{}
	for _, n := range names {
		s.fields[n] = struct{}{}
	}
	return s
}

// Infer derives a schema from the keys of a document. The id field is always
// included whether or not the document carries it.
func Infer(doc map[string]any) *Schema {
	return Of(slices.Collect(maps.Keys(doc))...)
}

// Has reports whether name is part of the schema.
func (s *Schema) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Len returns the number of fields including id.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Fields returns the field names in sorted order.
func (s *Schema) Fields() []string {
	return slices.Sorted(maps.Keys(s.fields))
}

// Equal reports set equality; order never matters.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.fields) != len(other.fields) {
		return false
	}
	for f := range s.fields {
		if !other.Has(f) {
			return false
		}
	}
	return true
}

// Diff compares a candidate against s and returns the sorted names s
// requires but the candidate lacks, and the sorted names the candidate
// carries that s does not know.
func (s *Schema) Diff(candidate *Schema) (missing, extra []string) {
	for f := range s.fields {
		if !candidate.Has(f) {
			missing = append(missing, f)
		}
	}
	for f := range candidate.fields {
		if !s.Has(f) {
			extra = append(extra, f)
		}
	}
	slices.Sort(missing)
	slices.Sort(extra)
	return missing, extra
}

// Unknown returns the sorted keys of doc that are not part of the schema.
func (s *Schema) Unknown(doc map[string]any) []string {
	var unknown []string
	for k := range doc {
		if !s.Has(k) {
			unknown = append(unknown, k)
		}
	}
	slices.Sort(unknown)
	return unknown
}

// String renders the schema as a sorted, comma separated field list.
func (s *Schema) String() string {
	if s == nil {
		return "<undefined>"
	}
	return "{" + strings.Join(s.Fields(), ", ") + "}"
}
