package job

import (
	"strings"

	"github.com/Iron-Ham/labelflow/internal/errors"
)

// DockerImages is the job server's image catalog:
// image name -> version -> CLI name -> CLI entry.
type DockerImages map[string]map[string]map[string]CLIEntry

// CLIEntry describes one CLI inside an image.
type CLIEntry struct {
	Type    string `json:"type,omitempty"`
	XMLSpec string `json:"xmlspec"`
	Run     string `json:"run,omitempty"`
}

// ImageRef is a parsed job type of the form image:version#cli.
type ImageRef struct {
	Image   string
	Version string
	CLI     string
}

// ParseImageRef splits a job type such as
// "dsarchive/superpixel:latest#SuperpixelClassification".
func ParseImageRef(jobType string) (ImageRef, error) {
	imageVersion, cli, ok := strings.Cut(jobType, "#")
	if !ok || cli == "" {
		return ImageRef{}, errors.NewValidationError("job type must have the form image:version#cli").
			WithField("job.type").WithValue(jobType)
	}
	image, version, ok := strings.Cut(imageVersion, ":")
	if !ok || image == "" || version == "" {
		return ImageRef{}, errors.NewValidationError("job type must have the form image:version#cli").
			WithField("job.type").WithValue(jobType)
	}
	return ImageRef{Image: image, Version: version, CLI: cli}, nil
}

func (r ImageRef) String() string {
	return r.Image + ":" + r.Version + "#" + r.CLI
}

// Resolve returns the descriptor URL of r in images, or a not-found error
// matching errors.ErrJobNotFound.
func (r ImageRef) Resolve(images DockerImages) (string, error) {
	entry, ok := images[r.Image][r.Version][r.CLI]
	if !ok || entry.XMLSpec == "" {
		return "", errors.NewJobNotFoundError(r.String())
	}
	return entry.XMLSpec, nil
}
