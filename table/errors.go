package table

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Callers match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrSchemaMismatch   = errors.New("schema mismatch")
	ErrSchemaUndefined  = errors.New("schema not yet defined")
	ErrUnknownField     = errors.New("unknown field")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidInput     = errors.New("invalid input")
)

// SchemaMismatchError reports the field names a full-record write was
// missing and the ones it added relative to the table schema.
type SchemaMismatchError struct {
	Op      string
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("%s schema mismatch: missing=[%s] extra=[%s]",
		e.Op, strings.Join(e.Missing, ", "), strings.Join(e.Extra, ", "))
}

func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

// UnknownFieldError reports patch fields absent from the table schema.
type UnknownFieldError struct {
	Fields []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("patch attempted unknown fields: [%s]", strings.Join(e.Fields, ", "))
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

func errNotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func errAlreadyExists(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrAlreadyExists)
}
