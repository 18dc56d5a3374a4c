// Package learning runs the guided labeling workflow for one training folder.
//
// A [Session] wires the stores to the workflow components: it seeds the
// category registry from the folder configuration, discovers previous jobs,
// loads and synchronizes annotations, ranks predictions, saves labels through
// the coalescing save queue and launches and watches training jobs.
//
// Session state is an explicit [State] value. Each phase takes a State and
// returns a new one, leaving its input untouched when it fails. Commit makes a
// State the session's current one.
package learning

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/groupconfig"
	"github.com/Iron-Ham/labelflow/internal/job"
	"github.com/Iron-Ham/labelflow/internal/logging"
	"github.com/Iron-Ham/labelflow/internal/savequeue"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

// Names of the child folders a training folder needs before the first run.
const (
	AnnotationsFolder = "Annotations"
	FeaturesFolder    = "Features"
	ModelsFolder      = "Models"
)

// fetchConcurrency bounds concurrent store reads while loading annotations.
const fetchConcurrency = 8

// Stores are the collaborators a session reads and writes.
type Stores struct {
	Annotations annotation.Store
	Items       annotation.ItemStore
	Jobs        job.Store
	Config      groupconfig.Store
}

// Options configures a Session.
type Options struct {
	FolderID           string
	JobURL             string
	JobType            string
	PollInterval       time.Duration
	ValidPattern       string
	PredictionsPattern string
	SaveConcurrency    int
	Logger             *logging.Logger
	Bus                *event.Bus
}

// Session coordinates the workflow of one training folder. It is safe for
// concurrent use.
type Session struct {
	stores   Stores
	folderID string
	jobType  string
	selector *workflow.Selector
	launcher *job.Launcher
	poller   *job.Poller
	queue    *savequeue.Queue
	logger   *logging.Logger
	bus      *event.Bus
	stop     context.CancelFunc

	mu        sync.Mutex
	state     State
	saves     map[string]*annotation.Set // latest requested content per image
	handle    *job.Handle
	reloadErr error
}

// New creates a session. ctx bounds the label saves the session starts.
func New(ctx context.Context, stores Stores, opts Options) (*Session, error) {
	if opts.FolderID == "" {
		return nil, errors.NewValidationError("training folder is required").WithField("folder.id")
	}
	if opts.JobType == "" {
		opts.JobType = job.DefaultType
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	selector, err := workflow.NewSelector(opts.ValidPattern, opts.PredictionsPattern)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.WithFolder(opts.FolderID)
	s := &Session{
		stores:   stores,
		folderID: opts.FolderID,
		jobType:  opts.JobType,
		selector: selector,
		launcher: job.NewLauncher(stores.Jobs, opts.JobURL, logger, opts.Bus),
		poller:   job.NewPoller(stores.Jobs, job.PollerOptions{Interval: opts.PollInterval, Logger: logger, Bus: opts.Bus}),
		logger:   logger.WithComponent("session"),
		bus:      opts.Bus,
		state:    State{Epoch: workflow.NoEpoch, Stage: workflow.SuperpixelSegmentation},
		saves:    make(map[string]*annotation.Set),
	}

	queueCtx, stop := context.WithCancel(ctx)
	s.stop = stop
	s.queue = savequeue.New(queueCtx, savequeue.PersisterFunc(s.persistLabels), savequeue.Options{
		Concurrency: opts.SaveConcurrency,
		Logger:      logger,
		Bus:         opts.Bus,
	})
	return s, nil
}

// FolderID returns the training folder.
func (s *Session) FolderID() string {
	return s.folderID
}

// Current returns the committed state.
func (s *Session) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Commit makes st the session's current state. Labels remapped by the
// synchronization that produced st are queued for saving.
func (s *Session) Commit(st State) {
	s.commit(st)
}

// commit makes st current and returns it as committed.
func (s *Session) commit(st State) State {
	unsaved := st.unsaved
	st.unsaved = nil
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.SaveLabels(st, unsaved...)
	return st
}

// Refresh reads the folder from scratch: Open, then CheckJobs. The result is
// committed.
func (s *Session) Refresh(ctx context.Context) (State, error) {
	st, err := s.Open(ctx)
	if err != nil {
		return State{}, err
	}
	st.LastJobID = s.Current().LastJobID
	st, err = s.CheckJobs(ctx, st)
	if err != nil {
		return State{}, err
	}
	return s.commit(st), nil
}

// SaveLabels queues a save of the label annotations of imageIDs as they are
// in st. Saves run in the background; Flush waits for them.
func (s *Session) SaveLabels(st State, imageIDs ...string) {
	if st.Annotations == nil || len(imageIDs) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range imageIDs {
		s.saves[id] = st.Annotations
	}
	s.mu.Unlock()
	s.queue.Enqueue(imageIDs...)
}

// persistLabels saves the latest requested label annotation of one image.
// Images without one, such as images added since the last run, are skipped.
func (s *Session) persistLabels(ctx context.Context, imageID string) (bool, error) {
	s.mu.Lock()
	set := s.saves[imageID]
	s.mu.Unlock()
	if set == nil {
		return false, nil
	}
	defer func() {
		s.mu.Lock()
		if s.saves[imageID] == set {
			delete(s.saves, imageID)
		}
		s.mu.Unlock()
	}()

	pair, ok := set.Get(imageID)
	if !ok || pair.Labels == nil {
		return false, nil
	}
	if err := s.stores.Annotations.SaveAnnotation(ctx, pair.Labels); err != nil {
		return false, err
	}
	return true, nil
}

// Flush waits until every queued label save has finished.
func (s *Session) Flush(ctx context.Context) error {
	return s.queue.Wait(ctx)
}

// SaveStatus returns a snapshot of the save queue.
func (s *Session) SaveStatus() savequeue.Status {
	return s.queue.Status()
}

// SaveCategories writes the registry and hotkeys of st back to the folder
// configuration and returns st with the written document.
func (s *Session) SaveCategories(ctx context.Context, st State) (State, error) {
	if st.Registry == nil || st.Hotkeys == nil {
		return st, errors.NewValidationError("session is not open").WithField("registry")
	}
	next := st.Clone()
	next.Config = groupconfig.Update(next.Config, next.Registry, next.Hotkeys)
	if err := s.stores.Config.WriteConfig(ctx, s.folderID, next.Config); err != nil {
		return st, errors.NewTransientError("write configuration", err).WithResource(s.folderID)
	}
	s.logger.Info("categories saved", "categories", next.Registry.Len())
	return next, nil
}

// Close stops watching any job, waits for queued saves and releases the
// session.
func (s *Session) Close() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()
	if h != nil {
		h.Cancel()
		<-h.Done()
	}
	err := s.queue.Wait(context.Background())
	s.stop()
	return err
}
