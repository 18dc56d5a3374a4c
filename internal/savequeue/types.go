package savequeue

import (
	"slices"

	"github.com/Iron-Ham/labelflow/internal/errors"
)

// State is the flush state of a Queue.
type State int

const (
	// Idle means no batch is in flight.
	Idle State = iota
	// Flushing means exactly one batch is being saved.
	Flushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// FlushResult reports the outcome of one batch.
type FlushResult struct {
	BatchID string
	IDs     []string
	Saved   []string
	Skipped []string
	Failed  map[string]error
}

// Err joins the failures of the batch in id order, or returns nil.
func (r FlushResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, r.Failed[id])
	}
	return errors.Join(errs...)
}

// Status is a snapshot of queue counters.
type Status struct {
	State     State
	Pending   int
	InFlight  int
	Flushes   int
	LastFlush *FlushResult
}
