package savequeue

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/logging"
)

// DefaultConcurrency bounds concurrent saves within one batch.
const DefaultConcurrency = 4

// Persister saves the label annotation of one image.
type Persister interface {
	// PersistLabels returns saved=false when the image has no label source
	// that can be saved. That is not an error.
	PersistLabels(ctx context.Context, imageID string) (saved bool, err error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc func(ctx context.Context, imageID string) (bool, error)

// PersistLabels calls f.
func (f PersisterFunc) PersistLabels(ctx context.Context, imageID string) (bool, error) {
	return f(ctx, imageID)
}

// Options configures a Queue.
type Options struct {
	Concurrency int
	Logger      *logging.Logger
	Bus         *event.Bus
}

// Queue coalesces save requests so that at most one batch is in flight.
// All methods are safe for concurrent use.
type Queue struct {
	ctx         context.Context
	persister   Persister
	concurrency int
	logger      *logging.Logger
	bus         *event.Bus

	mu       sync.Mutex
	state    State
	pending  []string            // insertion order
	queued   map[string]struct{} // membership of pending
	inFlight map[string]struct{} // ids of the batch being saved
	acquired map[string]struct{} // in-flight ids whose save has started
	idle     chan struct{}       // closed while Idle with nothing pending
	last     *FlushResult
	flushes  int
}

// New creates an idle queue. ctx bounds every flush the queue starts.
func New(ctx context.Context, persister Persister, opts Options) *Queue {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		ctx:         ctx,
		persister:   persister,
		concurrency: opts.Concurrency,
		logger:      opts.Logger.WithComponent("savequeue"),
		bus:         opts.Bus,
		state:       Idle,
		queued:      make(map[string]struct{}),
		idle:        idle,
	}
}

// Enqueue requests a save of every id. When the queue is Idle the pending set
// is flushed immediately. While Flushing, ids are accumulated for the next
// batch. An id of the in-flight batch whose save has not started yet is
// skipped, since that save reads the latest content. An id whose save has
// already started is saved again by the next batch.
func (q *Queue) Enqueue(ids ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range ids {
		if _, ok := q.queued[id]; ok {
			continue
		}
		_, inFlight := q.inFlight[id]
		_, started := q.acquired[id]
		if inFlight && !started {
			continue
		}
		q.queued[id] = struct{}{}
		q.pending = append(q.pending, id)
	}

	if q.state == Idle && len(q.pending) > 0 {
		batch := q.takePendingLocked()
		q.state = Flushing
		q.idle = make(chan struct{})
		go q.run(batch)
	}
}

// takePendingLocked captures the pending set as the next batch and clears it.
func (q *Queue) takePendingLocked() []string {
	batch := q.pending
	q.pending = nil
	q.queued = make(map[string]struct{})
	q.inFlight = make(map[string]struct{}, len(batch))
	q.acquired = make(map[string]struct{}, len(batch))
	for _, id := range batch {
		q.inFlight[id] = struct{}{}
	}
	return batch
}

func (q *Queue) run(batch []string) {
	for {
		result := q.flush(batch)
		q.report(result)

		q.mu.Lock()
		q.last = &result
		q.flushes++
		if len(q.pending) == 0 {
			q.state = Idle
			q.inFlight = nil
			q.acquired = nil
			close(q.idle)
			q.mu.Unlock()
			return
		}
		batch = q.takePendingLocked()
		q.mu.Unlock()
	}
}

// flush saves every id of batch concurrently and waits for all of them.
// Failures are collected and never retried.
func (q *Queue) flush(batch []string) FlushResult {
	batchID := uuid.NewString()
	q.logger.Debug("flushing save batch", "batch_id", batchID, "size", len(batch))

	type outcome struct {
		saved bool
		err   error
	}
	outcomes := make([]outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(q.concurrency)
	for i, id := range batch {
		g.Go(func() error {
			q.mu.Lock()
			q.acquired[id] = struct{}{}
			q.mu.Unlock()
			saved, err := q.persister.PersistLabels(q.ctx, id)
			outcomes[i] = outcome{saved: saved, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := FlushResult{BatchID: batchID, IDs: slices.Clone(batch)}
	for i, id := range batch {
		switch o := outcomes[i]; {
		case o.err != nil:
			if result.Failed == nil {
				result.Failed = make(map[string]error)
			}
			result.Failed[id] = errors.NewTransientError("save labels", o.err).WithResource(id)
		case o.saved:
			result.Saved = append(result.Saved, id)
		default:
			result.Skipped = append(result.Skipped, id)
		}
	}
	return result
}

func (q *Queue) report(result FlushResult) {
	for id, err := range result.Failed {
		q.logger.Error("failed to save labels", "batch_id", result.BatchID, "image_id", id, "error", err)
	}
	q.logger.Info("save batch flushed",
		"batch_id", result.BatchID,
		"saved", len(result.Saved),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
	)
	if q.bus != nil {
		q.bus.Publish(event.NewSaveFlushedEvent(result.BatchID, result.Saved, result.Skipped, result.Failed))
	}
}

// Wait blocks until the queue is Idle with nothing pending, or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending returns a copy of the ids waiting for the next batch.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.pending)
}

// InFlight returns the ids of the batch being saved, in no particular order.
func (q *Queue) InFlight() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.inFlight))
	for id := range q.inFlight {
		ids = append(ids, id)
	}
	return ids
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Status{
		State:    q.state,
		Pending:  len(q.pending),
		InFlight: len(q.inFlight),
		Flushes:  q.flushes,
	}
	if q.last != nil {
		last := *q.last
		s.LastFlush = &last
	}
	return s
}
