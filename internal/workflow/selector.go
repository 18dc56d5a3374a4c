package workflow

import (
	"github.com/gobwas/glob"

	"github.com/Iron-Ham/labelflow/internal/errors"
)

// Default name patterns.
const (
	DefaultValidPattern       = "*Superpixel*"
	DefaultPredictionsPattern = "*Predictions*"
)

// Named is anything with an ID and an annotation name.
type Named interface {
	AnnotationID() string
	AnnotationName() string
}

// Selection holds the annotation ids chosen for one image. Empty means none.
type Selection struct {
	Labels      string
	Predictions string
}

// Selector decides which annotations take part in the workflow.
type Selector struct {
	valid       glob.Glob
	predictions glob.Glob
}

// NewSelector compiles the two patterns. Empty patterns use the defaults.
func NewSelector(validPattern, predictionsPattern string) (*Selector, error) {
	if validPattern == "" {
		validPattern = DefaultValidPattern
	}
	if predictionsPattern == "" {
		predictionsPattern = DefaultPredictionsPattern
	}
	valid, err := glob.Compile(validPattern)
	if err != nil {
		return nil, errors.NewValidationError("invalid annotation pattern").
			WithField("annotations.valid_pattern").WithValue(validPattern).WithCause(err)
	}
	predictions, err := glob.Compile(predictionsPattern)
	if err != nil {
		return nil, errors.NewValidationError("invalid annotation pattern").
			WithField("annotations.predictions_pattern").WithValue(predictionsPattern).WithCause(err)
	}
	return &Selector{valid: valid, predictions: predictions}, nil
}

// IsValid reports whether name belongs to the workflow.
func (s *Selector) IsValid(name string) bool {
	return s.valid.Match(name)
}

// IsPredictions reports whether name is a valid predictions annotation.
func (s *Selector) IsPredictions(name string) bool {
	return s.IsValid(name) && s.predictions.Match(name)
}

// Select picks the first valid predictions annotation and the first valid
// non-predictions annotation. annotations are expected newest first.
func Select[T Named](s *Selector, annotations []T) Selection {
	var sel Selection
	for _, a := range annotations {
		name := a.AnnotationName()
		if !s.IsValid(name) {
			continue
		}
		if s.predictions.Match(name) {
			if sel.Predictions == "" {
				sel.Predictions = a.AnnotationID()
			}
		} else if sel.Labels == "" {
			sel.Labels = a.AnnotationID()
		}
	}
	return sel
}
