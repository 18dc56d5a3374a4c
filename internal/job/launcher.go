package job

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/event"
	"github.com/Iron-Ham/labelflow/internal/logging"
)

// Defaults for the superpixel classification job.
const (
	DefaultURL  = "dsarchive_superpixel_latest/SuperpixelClassification"
	DefaultType = "dsarchive/superpixel:latest#SuperpixelClassification"
)

// Runner starts jobs on the job server.
type Runner interface {
	Run(ctx context.Context, jobURL string, params map[string]string) (Job, error)
	Rerun(ctx context.Context, jobURL, jobID string) (Job, error)
}

// Store is the full job server interface used by the session.
type Store interface {
	StatusSource
	Runner
	ListJobs(ctx context.Context, jobType string) ([]Job, error)
	DockerImages(ctx context.Context) (DockerImages, error)
	Descriptor(ctx context.Context, url string) ([]byte, error)
}

// Params are the inputs of an initial superpixel classification run.
type Params struct {
	ImagesFolder      string
	AnnotationsFolder string
	FeaturesFolder    string
	ModelsFolder      string
	Magnification     float64
	Radius            int
	Certainty         string
	Labels            []string
}

// Values renders p as the job server's form parameters.
func (p Params) Values() (map[string]string, error) {
	labels := p.Labels
	if labels == nil {
		labels = []string{}
	}
	encoded, err := json.Marshal(labels)
	if err != nil {
		return nil, errors.Wrap(err, "encode labels")
	}
	return map[string]string{
		"images":        p.ImagesFolder,
		"annotationDir": p.AnnotationsFolder,
		"features":      p.FeaturesFolder,
		"magnification": strconv.FormatFloat(p.Magnification, 'f', -1, 64),
		"radius":        strconv.Itoa(p.Radius),
		"labels":        string(encoded),
		"modeldir":      p.ModelsFolder,
		"girderApiUrl":  "",
		"girderToken":   "",
		"certainty":     p.Certainty,
	}, nil
}

// Validate checks the parameters that the job cannot run without.
func (p Params) Validate() error {
	switch {
	case p.ImagesFolder == "":
		return errors.NewValidationError("images folder is required").WithField("images")
	case p.Radius <= 0:
		return errors.NewValidationError("radius must be positive").WithField("radius").WithValue(p.Radius)
	case p.Magnification <= 0:
		return errors.NewValidationError("magnification must be positive").WithField("magnification").WithValue(p.Magnification)
	}
	return nil
}

// Launcher starts and reruns the classification job.
type Launcher struct {
	runner Runner
	url    string
	logger *logging.Logger
	bus    *event.Bus
}

// NewLauncher creates a Launcher for the job at jobURL.
func NewLauncher(runner Runner, jobURL string, logger *logging.Logger, bus *event.Bus) *Launcher {
	if jobURL == "" {
		jobURL = DefaultURL
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Launcher{runner: runner, url: jobURL, logger: logger.WithComponent("launcher"), bus: bus}
}

// Run launches a new job.
func (l *Launcher) Run(ctx context.Context, params Params) (Job, error) {
	if err := params.Validate(); err != nil {
		return Job{}, err
	}
	values, err := params.Values()
	if err != nil {
		return Job{}, err
	}
	j, err := l.runner.Run(ctx, l.url, values)
	if err != nil {
		return Job{}, errors.NewTransientError("run job", err).WithResource(l.url)
	}
	l.logger.Info("job launched", "job_id", j.ID, "radius", params.Radius, "magnification", params.Magnification)
	if l.bus != nil {
		l.bus.Publish(event.NewJobStartedEvent(j.ID, false))
	}
	return j, nil
}

// Rerun relaunches jobID with its original inputs.
func (l *Launcher) Rerun(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.NewValidationError("no previous job to rerun").WithField("job_id")
	}
	j, err := l.runner.Rerun(ctx, l.url, jobID)
	if err != nil {
		return Job{}, errors.NewTransientError("rerun job", err).WithResource(jobID)
	}
	l.logger.Info("job rerun", "job_id", j.ID, "previous_job_id", jobID)
	if l.bus != nil {
		l.bus.Publish(event.NewJobStartedEvent(j.ID, true))
	}
	return j, nil
}
