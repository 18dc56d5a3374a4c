package job

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/logging"
)

// DefaultPollInterval is how often a watched job's status is requested.
const DefaultPollInterval = 2 * time.Second

// StatusSource fetches the current record of a job.
type StatusSource interface {
	Job(ctx context.Context, id string) (Job, error)
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval time.Duration
	Logger   *logging.Logger
	Bus      *event.Bus
}

// Poller watches jobs until they succeed.
type Poller struct {
	source   StatusSource
	interval time.Duration
	logger   *logging.Logger
	bus      *event.Bus
}

// NewPoller creates a Poller reading statuses from source.
func NewPoller(source StatusSource, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	return &Poller{
		source:   source,
		interval: opts.Interval,
		logger:   opts.Logger.WithComponent("poller"),
		bus:      opts.Bus,
	}
}

// Interval returns the poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Handle tracks one watched job. It is safe for concurrent use.
type Handle struct {
	JobID string

	mu        sync.Mutex
	status    Status
	polls     int
	succeeded bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Status returns the last observed status.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Polls returns the number of status requests made so far.
func (h *Handle) Polls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls
}

// Cancel stops polling. The success callback will not run afterwards unless it
// was already running.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the watch has ended, by success or cancellation.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the watch ends. It returns nil when the job succeeded and
// an error wrapping errors.ErrCanceled when the watch was stopped first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.succeeded {
		return nil
	}
	return errors.Wrapf(errors.ErrCanceled, "watch of job %s", h.JobID)
}

func (h *Handle) setStatus(s Status) Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	old := h.status
	h.status = s
	return old
}

// Watch starts polling jobID and returns its handle. onSuccess runs exactly
// once, on the polling goroutine, when the job succeeds. If initial is already
// StatusSucceeded, onSuccess runs without any poll. Cancelling ctx or the
// handle stops polling without invoking onSuccess.
//
// A failed job does not end the watch: it is logged and polling continues.
func (p *Poller) Watch(ctx context.Context, jobID string, initial Status, onSuccess func(Job)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		JobID:  jobID,
		status: StatusRunning,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	logger := p.logger.WithJob(jobID)
	if initial == StatusSucceeded {
		h.status = StatusSucceeded
		go func() {
			defer close(h.done)
			defer cancel()
			p.succeed(h, Job{ID: jobID, Code: CodeSuccess}, onSuccess, logger)
		}()
		return h
	}

	logger.Info("watching job", "interval", p.interval.String())
	go p.loop(ctx, h, onSuccess, logger)
	return h
}

func (p *Poller) loop(ctx context.Context, h *Handle, onSuccess func(Job), logger *logging.Logger) {
	defer close(h.done)
	defer h.cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stopped watching job", "reason", ctx.Err().Error())
			return
		case <-ticker.C:
			job, err := p.source.Job(ctx, h.JobID)
			h.mu.Lock()
			h.polls++
			h.mu.Unlock()

			if ctx.Err() != nil {
				logger.Debug("stopped watching job", "reason", ctx.Err().Error())
				return
			}
			if err != nil {
				logger.Warn("job status request failed", "error", err)
				continue
			}

			status := job.Status()
			if old := h.setStatus(status); old != status {
				logger.Debug("job status changed", "from", old.String(), "to", status.String())
				if p.bus != nil {
					p.bus.Publish(event.NewJobStatusChangedEvent(h.JobID, old.String(), status.String()))
				}
			}

			switch status {
			case StatusSucceeded:
				ticker.Stop()
				p.succeed(h, job, onSuccess, logger)
				return
			case StatusFailed:
				// TODO: surface failed jobs to the session instead of polling until teardown.
				logger.Warn("job failed, still polling", "code", job.Code)
			}
		}
	}
}

func (p *Poller) succeed(h *Handle, job Job, onSuccess func(Job), logger *logging.Logger) {
	h.mu.Lock()
	h.succeeded = true
	polls := h.polls
	h.mu.Unlock()

	logger.Info("job succeeded", "polls", polls)
	if p.bus != nil {
		p.bus.Publish(event.NewJobSucceededEvent(h.JobID, polls))
	}
	if onSuccess != nil {
		onSuccess(job)
	}
}
