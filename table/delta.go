package table

import (
	"context"

	"github.com/stevemurr/state-table-server/schema"
)

// Delta is the compact change description handed to a Persister. Each delta
// has exactly one operation key.
type Delta map[string]any

// Delta operation keys.
const (
	OpSetState     = "set_state"
	OpCreateRecord = "create_record"
	OpSetRecord    = "set_record"
	OpPatchRecord  = "patch_record"
	OpDeleteRecord = "delete_record"
)

// Op returns the operation key of the delta.
func (d Delta) Op() string {
	for _, op := range []string{OpSetState, OpCreateRecord, OpSetRecord, OpPatchRecord, OpDeleteRecord} {
		if _, ok := d[op]; ok {
			return op
		}
	}
	return ""
}

func setStateDelta(accepted, dropped int) Delta {
	return Delta{OpSetState: accepted, "dropped": dropped}
}

func createRecordDelta(rec Record) Delta {
	return Delta{OpCreateRecord: rec.Clone()}
}

func setRecordDelta(rec Record) Delta {
	return Delta{OpSetRecord: rec.Clone()}
}

func patchRecordDelta(id int64, changes Record) Delta {
	patch := make(Record, len(changes)+1)
	for k, v := range changes {
		patch[k] = v
	}
	patch[schema.IDField] = id
	return Delta{OpPatchRecord: patch}
}

func deleteRecordDelta(id int64) Delta {
	return Delta{OpDeleteRecord: id}
}

// Persister receives every accepted mutation after it is committed in
// memory. A returned error is logged and never undoes the mutation.
type Persister interface {
	Persist(ctx context.Context, table string, delta Delta) error
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, table string, delta Delta) error

func (f PersisterFunc) Persist(ctx context.Context, table string, delta Delta) error {
	return f(ctx, table, delta)
}

type discard struct{}

func (discard) Persist(context.Context, string, Delta) error { return nil }
