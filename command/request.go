package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stevemurr/state-table-server/table"
)

// ErrMalformed marks a request body that is not a JSON object.
var ErrMalformed = errors.New("invalid JSON")

// Request is one decoded protocol message. Empty State and nil ID or
// MaxLength mean the field was absent.
type Request struct {
	Cmd       string          `json:"cmd"`
	State     string          `json:"state,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	ID        *int64          `json:"id,omitempty"`
	MaxLength *int            `json:"max_length,omitempty"`
}

// Decode parses a raw request body. Structural problems return ErrMalformed;
// badly typed fields return table.ErrInvalidInput.
func Decode(raw []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Request{}, ErrMalformed
	}

	var req Request
	if v, ok := present(fields, "cmd"); ok {
		if err := json.Unmarshal(v, &req.Cmd); err != nil {
			return Request{}, invalid("'cmd' must be a string")
		}
	}
	req.Cmd = strings.ToUpper(strings.TrimSpace(req.Cmd))

	if v, ok := present(fields, "state"); ok {
		if err := json.Unmarshal(v, &req.State); err != nil {
			return Request{}, invalid("'state' must be a string")
		}
	}

	if v, ok := present(fields, "id"); ok {
		id, err := decodeInt(v)
		if err != nil {
			return Request{}, invalid("'id' must be an integer")
		}
		req.ID = &id
	}

	if v, ok := present(fields, "max_length"); ok {
		n, err := decodeInt(v)
		if err != nil || n < 1 || int64(int(n)) != n {
			return Request{}, invalid("'max_length' must be a positive integer")
		}
		m := int(n)
		req.MaxLength = &m
	}

	if v, ok := present(fields, "data"); ok {
		req.Data = v
	}
	return req, nil
}

// present returns a field that exists and is not JSON null.
func present(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func decodeInt(raw json.RawMessage) (int64, error) {
	v, err := decodeValue(raw)
	if err != nil {
		return 0, err
	}
	return table.ParseID(v)
}

// decodeValue keeps numbers as json.Number so integer ids survive intact.
func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), table.ErrInvalidInput)
}

// record decodes data as a single JSON object.
func (r Request) record() (map[string]any, error) {
	if len(r.Data) == 0 {
		return nil, invalid("missing 'data' field")
	}
	v, err := decodeValue(r.Data)
	if err != nil {
		return nil, invalid("'data' is not valid JSON")
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("'data' must be an object")
	}
	return doc, nil
}

// records decodes data as a list of JSON objects. Absent data is an empty list.
func (r Request) records() ([]map[string]any, error) {
	if len(r.Data) == 0 {
		return nil, nil
	}
	v, err := decodeValue(r.Data)
	if err != nil {
		return nil, invalid("'data' is not valid JSON")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, invalid("'data' must be a list of objects")
	}
	docs := make([]map[string]any, 0, len(list))
	for i, item := range list {
		doc, ok := item.(map[string]any)
		if !ok {
			return nil, invalid("'data[%d]' must be an object", i)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r Request) recordID() (int64, error) {
	if r.ID == nil {
		return 0, invalid("missing 'id' field")
	}
	return *r.ID, nil
}
