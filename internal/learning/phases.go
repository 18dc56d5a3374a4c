package learning

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/groupconfig"
	"github.com/Iron-Ham/labelflow/internal/job"
	"github.com/Iron-Ham/labelflow/internal/jobspec"
	"github.com/Iron-Ham/labelflow/internal/pixelmap"
	"github.com/Iron-Ham/labelflow/internal/ranking"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

// Open reads the folder configuration and child folders into a fresh state.
func (s *Session) Open(ctx context.Context) (State, error) {
	doc, err := s.stores.Config.ReadConfig(ctx, s.folderID)
	if err != nil {
		return State{}, errors.NewTransientError("read configuration", err).WithResource(s.folderID)
	}
	reg, hotkeys, err := groupconfig.Seed(doc)
	if err != nil {
		return State{}, err
	}
	folders, err := s.stores.Items.ListFolders(ctx, s.folderID)
	if err != nil {
		return State{}, errors.NewTransientError("list folders", err).WithResource(s.folderID)
	}

	s.logger.Debug("session opened", "categories", reg.Len(), "folders", len(folders))
	return State{
		Config:      doc,
		Registry:    reg,
		Hotkeys:     hotkeys,
		Folders:     folders,
		Annotations: annotation.NewSet(),
		Epoch:       workflow.NoEpoch,
		Stage:       workflow.SuperpixelSegmentation,
	}, nil
}

// CheckJobs looks for the latest running or succeeded job launched for the
// folder. A running job is watched until it succeeds before the annotations
// are loaded.
func (s *Session) CheckJobs(ctx context.Context, st State) (State, error) {
	jobs, err := s.stores.Jobs.ListJobs(ctx, s.jobType)
	if err != nil {
		return st, errors.NewTransientError("list jobs", err).WithResource(s.jobType)
	}
	next := st
	prev, ok := job.FindPrevious(jobs, s.folderID)
	if ok {
		next.LastJobID = prev.ID
		if prev.Status() == job.StatusRunning {
			s.logger.Info("waiting for running job", "job_id", prev.ID)
			h := s.watch(ctx, prev.ID, job.StatusRunning, nil)
			if err := h.Wait(ctx); err != nil {
				return st, err
			}
		}
	}
	return s.Load(ctx, next)
}

// Load loads and synchronizes the annotations, then prepares the stage: the
// ranking when guided labeling, the certainty metrics before the first run.
func (s *Session) Load(ctx context.Context, st State) (State, error) {
	next, err := s.LoadAnnotations(ctx, st)
	if err != nil {
		return st, err
	}
	if next, err = s.SynchronizeCategories(next); err != nil {
		return st, err
	}
	switch next.Stage {
	case workflow.GuidedLabeling:
		next, err = s.Rank(next)
	case workflow.SuperpixelSegmentation:
		next, err = s.CertaintyMetrics(ctx, next)
	}
	if err != nil {
		return st, err
	}
	return next, nil
}

type itemSelection struct {
	sel   workflow.Selection
	names []string
}

// LoadAnnotations fetches the workflow annotations of every image in the
// folder and resolves the epoch from all annotation names. Every fetch
// finishes before the state is built.
func (s *Session) LoadAnnotations(ctx context.Context, st State) (State, error) {
	items, err := s.stores.Items.ListItems(ctx, s.folderID)
	if err != nil {
		return st, errors.NewTransientError("list items", err).WithResource(s.folderID)
	}
	var images []annotation.Item
	for _, it := range items {
		if it.IsImage() {
			images = append(images, it)
		}
	}

	selections := make([]itemSelection, len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, img := range images {
		g.Go(func() error {
			summaries, err := s.stores.Annotations.ListAnnotations(gctx, img.ID)
			if err != nil {
				return errors.NewTransientError("list annotations", err).WithResource(img.ID)
			}
			names := make([]string, len(summaries))
			for j, sum := range summaries {
				names[j] = sum.Name
			}
			selections[i] = itemSelection{sel: workflow.Select(s.selector, summaries), names: names}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st, err
	}

	resolver := workflow.NewResolver()
	for _, sel := range selections {
		resolver.Observe(sel.names...)
	}
	epoch, stage := resolver.Result()

	type fetched struct {
		labels, predictions *annotation.Annotation
	}
	results := make([]fetched, len(images))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i := range images {
		for _, id := range []string{selections[i].sel.Labels, selections[i].sel.Predictions} {
			if id == "" {
				continue
			}
			isLabels := id == selections[i].sel.Labels
			g.Go(func() error {
				a, err := s.stores.Annotations.Annotation(gctx, id)
				if err != nil {
					return errors.NewTransientError("fetch annotation", err).WithResource(id)
				}
				if isLabels {
					results[i].labels = a
				} else {
					results[i].predictions = a
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return st, err
	}

	set := annotation.NewSet()
	for i, img := range images {
		set.AddImage(img.ID)
		if a := results[i].labels; a != nil {
			set.Put(img.ID, pixelmap.RoleLabels, a)
		}
		if a := results[i].predictions; a != nil {
			set.Put(img.ID, pixelmap.RolePredictions, a)
		}
	}

	next := st.Clone()
	next.Images = images
	next.Annotations = set
	next.Epoch = epoch
	next.Stage = stage
	next.Records = nil
	next.AverageCertainty, next.HasCertainty = ranking.AverageCertainty(set.Certainty())

	if stage != st.Stage && s.bus != nil {
		s.bus.Publish(event.NewStageChangedEvent(epoch, st.Stage.String(), stage.String()))
	}
	s.logger.Info("annotations loaded",
		"images", len(images),
		"annotations", set.Count(),
		"epoch", epoch,
		"stage", stage.String(),
	)
	return next, nil
}

// SynchronizeCategories registers the categories of every loaded annotation,
// labels before predictions per image in item order, and remaps every
// pixelmap against the registry. Either all annotations are remapped or
// none. The remapped labels are saved when the result is committed.
func (s *Session) SynchronizeCategories(st State) (State, error) {
	if st.Annotations == nil || st.Annotations.Count() == 0 {
		return st, nil
	}
	sources, err := st.Annotations.Sources()
	if err != nil {
		return st, err
	}

	next := st.Clone()
	pixelmap.Register(next.Registry, sources...)
	remapped, err := pixelmap.RemapAll(next.Registry, sources)
	if err != nil {
		return st, err
	}
	if err := next.Annotations.Apply(remapped); err != nil {
		return st, err
	}

	s.logger.Info("categories synchronized", "categories", next.Registry.Len(), "sources", len(sources))
	if s.bus != nil {
		s.bus.Publish(event.NewCategoriesSyncedEvent(next.Registry.Len(), next.Annotations.Len()))
	}
	next.unsaved = next.Annotations.ImageIDs()
	return next, nil
}

// Rank orders every prediction of st by ascending certainty.
func (s *Session) Rank(st State) (State, error) {
	if st.Annotations == nil {
		return st, nil
	}
	records, err := ranking.Rank(st.Annotations.RankingImages(), st.DefaultLabel())
	if err != nil {
		return st, err
	}
	next := st
	next.Records = records
	s.logger.Debug("predictions ranked", "records", len(records), "average_certainty", st.AverageCertainty)
	if s.bus != nil {
		s.bus.Publish(event.NewRankingUpdatedEvent(len(records), st.AverageCertainty))
	}
	return next, nil
}

// CertaintyMetrics looks up the classification job's descriptor and records
// the certainty metrics it offers. A descriptor without metrics leaves the
// metrics nil; an unknown job image is an error.
func (s *Session) CertaintyMetrics(ctx context.Context, st State) (State, error) {
	ref, err := job.ParseImageRef(s.jobType)
	if err != nil {
		return st, err
	}
	images, err := s.stores.Jobs.DockerImages(ctx)
	if err != nil {
		return st, errors.NewTransientError("list job images", err)
	}
	specURL, err := ref.Resolve(images)
	if err != nil {
		return st, err
	}
	data, err := s.stores.Jobs.Descriptor(ctx, specURL)
	if err != nil {
		return st, errors.NewTransientError("fetch job descriptor", err).WithResource(specURL)
	}
	exe, err := jobspec.Parse(data)
	if err != nil {
		return st, err
	}

	next := st
	metrics, err := jobspec.CertaintyMetrics(jobspec.Flatten(exe))
	switch {
	case errors.Is(err, errors.ErrIncompleteConfiguration):
		s.logger.Warn("job offers no certainty metric", "job_type", s.jobType)
		if s.bus != nil {
			s.bus.Publish(event.NewCertaintyUnavailableEvent(ref.String()))
		}
		next.CertaintyMetrics = nil
	case err != nil:
		return st, err
	default:
		next.CertaintyMetrics = metrics
	}
	return next, nil
}

// AssignLabel sets the category of one superpixel in an image's labels and
// queues the labels for saving. In guided labeling the ranking is rebuilt.
func (s *Session) AssignLabel(st State, imageID string, index int, label string) (State, error) {
	if st.Annotations == nil || st.Registry == nil {
		return st, errors.NewValidationError("session is not open").WithField("annotations")
	}
	value, ok := st.Registry.IndexOf(label)
	if !ok {
		return st, errors.NewUnregisteredLabelError(string(pixelmap.RoleLabels), label).WithImage(imageID)
	}
	pair, ok := st.Annotations.Get(imageID)
	if !ok || pair.Labels == nil {
		return st, errors.NewNotFoundError("labels annotation", imageID)
	}

	next := st.Clone()
	pair, _ = next.Annotations.Get(imageID)
	el, err := pair.Labels.Pixelmap()
	if err != nil {
		return st, err
	}
	if index < 0 || index >= len(el.Values) {
		return st, errors.NewMissingReferenceError(string(pixelmap.RoleLabels), index, value).WithImage(imageID)
	}
	el.Values[index] = value
	if len(el.Categories) < next.Registry.Len() {
		// categories registered after the last synchronization
		el.Apply(pixelmap.Pixelmap{Values: el.Values, Categories: next.Registry.Categories()})
	}

	if next.Stage == workflow.GuidedLabeling {
		if next, err = s.Rank(next); err != nil {
			return st, err
		}
	}
	s.SaveLabels(next, imageID)
	return next, nil
}
