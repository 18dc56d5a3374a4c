package learning

import (
	"context"

	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/job"
)

// watch makes jobID the session's watched job, replacing any previous one.
func (s *Session) watch(ctx context.Context, jobID string, initial job.Status, onSuccess func(job.Job)) *job.Handle {
	s.mu.Lock()
	prev := s.handle
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	h := s.poller.Watch(ctx, jobID, initial, onSuccess)
	s.mu.Lock()
	s.handle = h
	s.reloadErr = nil
	s.mu.Unlock()
	return h
}

// reloadAfter returns the success callback of a launched job: the job becomes
// the last run and the folder is loaded again. With goToNextStep the jobs are
// checked first, which picks up any newer job.
func (s *Session) reloadAfter(ctx context.Context, goToNextStep bool) func(job.Job) {
	return func(j job.Job) {
		st := s.Current()
		st.LastJobID = j.ID

		var err error
		if goToNextStep {
			st, err = s.CheckJobs(ctx, st)
		} else {
			st, err = s.Load(ctx, st)
		}

		s.mu.Lock()
		s.reloadErr = err
		s.mu.Unlock()
		if err != nil {
			s.logger.Error("reload after job failed", "job_id", j.ID, "error", err)
			return
		}
		s.Commit(st)
	}
}

// Watching returns the handle of the watched job, or nil.
func (s *Session) Watching() *job.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// WaitJob blocks until the watched job has succeeded and the folder has been
// reloaded. It returns nil immediately when no job is watched.
func (s *Session) WaitJob(ctx context.Context) error {
	h := s.Watching()
	if h == nil {
		return nil
	}
	if err := h.Wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadErr
}

// GenerateInitialSuperpixels launches the first classification run over the
// folder and watches it. The folder must contain the Annotations, Features
// and Models child folders.
func (s *Session) GenerateInitialSuperpixels(ctx context.Context, st State, radius int, magnification float64, certaintyMetric string) (*job.Handle, error) {
	folderIDs := make(map[string]string, 3)
	for _, name := range []string{AnnotationsFolder, FeaturesFolder, ModelsFolder} {
		f, ok := st.Folder(name)
		if !ok {
			return nil, errors.NewNotFoundError("folder", name)
		}
		folderIDs[name] = f.ID
	}

	j, err := s.launcher.Run(ctx, job.Params{
		ImagesFolder:      s.folderID,
		AnnotationsFolder: folderIDs[AnnotationsFolder],
		FeaturesFolder:    folderIDs[FeaturesFolder],
		ModelsFolder:      folderIDs[ModelsFolder],
		Magnification:     magnification,
		Radius:            radius,
		Certainty:         certaintyMetric,
	})
	if err != nil {
		return nil, err
	}
	return s.watch(ctx, j.ID, j.Status(), s.reloadAfter(ctx, true)), nil
}

// Retrain reruns the last job with its original inputs and watches it.
func (s *Session) Retrain(ctx context.Context, st State, goToNextStep bool) (*job.Handle, error) {
	j, err := s.launcher.Rerun(ctx, st.LastJobID)
	if err != nil {
		return nil, err
	}
	return s.watch(ctx, j.ID, j.Status(), s.reloadAfter(ctx, goToNextStep)), nil
}
