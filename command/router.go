// Package command decodes protocol requests, dispatches them to the table
// registry, and packages structured responses.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stevemurr/state-table-server/table"
)

// Command names. Matching is case-insensitive.
const (
	CreateState  = "CREATE_STATE"
	DeleteState  = "DELETE_STATE"
	ListStates   = "LIST_STATES"
	GetStateInfo = "GET_STATE_INFO"
	GetSchema    = "GET_SCHEMA"
	SetState     = "SET_STATE"
	CreateRecord = "CREATE_RECORD"
	SetRecord    = "SET_RECORD"
	PatchRecord  = "PATCH_RECORD"
	DeleteRecord = "DELETE_RECORD"
	GetRecord    = "GET_RECORD"
	ListRecords  = "LIST_RECORDS"
)

// ErrUnknownCommand is returned for a cmd outside the vocabulary.
var ErrUnknownCommand = errors.New("unknown command")

type registryFunc func(ctx context.Context, req Request) (Response, error)

type tableFunc func(ctx context.Context, t *table.Table, req Request) (Response, error)

// Router is a stateless dispatcher over a table registry.
type Router struct {
	registry *table.Registry
	logger   *slog.Logger

	registryCmds map[string]registryFunc
	tableCmds    map[string]tableFunc
}

// NewRouter creates a Router over reg.
func NewRouter(reg *table.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{registry: reg, logger: logger}
	r.registryCmds = map[string]registryFunc{
		CreateState: r.createState,
		DeleteState: r.deleteState,
		ListStates:  r.listStates,
	}
	r.tableCmds = map[string]tableFunc{
		GetStateInfo: getStateInfo,
		GetSchema:    getSchema,
		SetState:     setState,
		CreateRecord: createRecord,
		SetRecord:    setRecord,
		PatchRecord:  patchRecord,
		DeleteRecord: deleteRecord,
		GetRecord:    getRecord,
		ListRecords:  listRecords,
	}
	return r
}

// HandleRaw decodes and executes one request body. It always returns a
// response; failures are reported in it.
func (r *Router) HandleRaw(ctx context.Context, raw []byte) Response {
	req, err := Decode(raw)
	if err != nil {
		return r.fail(req, err)
	}
	return r.Handle(ctx, req)
}

// Handle executes a decoded request.
func (r *Router) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command panicked", "cmd", req.Cmd, "state", req.State, "panic", p)
			resp = errorResponse(fmt.Sprintf("server error: %v", p))
		}
	}()

	resp, err := r.dispatch(ctx, req)
	if err != nil {
		return r.fail(req, err)
	}
	return resp
}

func (r *Router) dispatch(ctx context.Context, req Request) (Response, error) {
	if fn, ok := r.registryCmds[req.Cmd]; ok {
		return fn(ctx, req)
	}
	fn, ok := r.tableCmds[req.Cmd]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, req.Cmd)
	}
	if req.State == "" {
		return nil, invalid("missing 'state' field")
	}
	t, err := r.registry.Get(req.State)
	if err != nil {
		return nil, err
	}
	return fn(ctx, t, req)
}

func (r *Router) fail(req Request, err error) Response {
	r.logger.Debug("command rejected", "cmd", req.Cmd, "state", req.State, "error", err)
	return errorResponse(err.Error())
}

func (r *Router) createState(_ context.Context, req Request) (Response, error) {
	if req.State == "" {
		return nil, invalid("missing 'state' field")
	}
	maxLength := 0
	if req.MaxLength != nil {
		maxLength = *req.MaxLength
	}
	if _, err := r.registry.Create(req.State, maxLength); err != nil {
		return nil, err
	}
	return ok(Response{"created": req.State, "max_length": req.MaxLength}), nil
}

func (r *Router) deleteState(_ context.Context, req Request) (Response, error) {
	if req.State == "" {
		return nil, invalid("missing 'state' field")
	}
	if err := r.registry.Delete(req.State); err != nil {
		return nil, err
	}
	return ok(nil), nil
}

func (r *Router) listStates(context.Context, Request) (Response, error) {
	return ok(Response{"states": r.registry.List()}), nil
}

func getStateInfo(_ context.Context, t *table.Table, _ Request) (Response, error) {
	info := t.Describe()
	return ok(Response{
		"name":           info.Name,
		"max_length":     info.MaxLength,
		"current_length": info.CurrentLength,
		"schema":         info.Schema,
		"version":        info.Version,
	}), nil
}

func getSchema(_ context.Context, t *table.Table, _ Request) (Response, error) {
	return ok(Response{"schema": t.Schema()}), nil
}

func setState(ctx context.Context, t *table.Table, req Request) (Response, error) {
	docs, err := req.records()
	if err != nil {
		return nil, err
	}
	entries := make([]table.Entry, 0, len(docs))
	for i, doc := range docs {
		e, err := table.NewEntry(doc)
		if err != nil {
			return nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		entries = append(entries, e)
	}
	res, err := t.ReplaceAll(ctx, entries)
	if err != nil {
		return nil, err
	}
	return ok(Response{"accepted": res.Accepted, "dropped": res.Dropped}), nil
}

func createRecord(ctx context.Context, t *table.Table, req Request) (Response, error) {
	doc, err := req.record()
	if err != nil {
		return nil, err
	}
	e, err := table.NewEntry(doc)
	if err != nil {
		return nil, err
	}
	id, err := t.Create(ctx, e)
	if err != nil {
		return nil, err
	}
	return ok(Response{"id": id}), nil
}

func setRecord(ctx context.Context, t *table.Table, req Request) (Response, error) {
	id, err := req.recordID()
	if err != nil {
		return nil, err
	}
	doc, err := req.record()
	if err != nil {
		return nil, err
	}
	if err := t.Put(ctx, id, doc); err != nil {
		return nil, err
	}
	return ok(nil), nil
}

func patchRecord(ctx context.Context, t *table.Table, req Request) (Response, error) {
	id, err := req.recordID()
	if err != nil {
		return nil, err
	}
	doc, err := req.record()
	if err != nil {
		return nil, err
	}
	patched, err := t.Patch(ctx, id, doc)
	if err != nil {
		return nil, err
	}
	return ok(Response{"patched": patched}), nil
}

func deleteRecord(ctx context.Context, t *table.Table, req Request) (Response, error) {
	id, err := req.recordID()
	if err != nil {
		return nil, err
	}
	return ok(Response{"deleted": t.Delete(ctx, id)}), nil
}

func getRecord(_ context.Context, t *table.Table, req Request) (Response, error) {
	id, err := req.recordID()
	if err != nil {
		return nil, err
	}
	rec, found := t.Get(id)
	if !found {
		return ok(Response{"record": nil}), nil
	}
	return ok(Response{"record": rec}), nil
}

func listRecords(_ context.Context, t *table.Table, _ Request) (Response, error) {
	return ok(Response{"records": t.List()}), nil
}
