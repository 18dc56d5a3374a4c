package annotation

import (
	"slices"

	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/pixelmap"
	"github.com/Iron-Ham/labelflow/internal/ranking"
)

// Pair holds the two annotations of one image. Either may be nil.
type Pair struct {
	Labels      *Annotation
	Predictions *Annotation
}

// Set holds the workflow annotations of every image, in item order.
type Set struct {
	order   []string
	byImage map[string]*Pair
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{byImage: make(map[string]*Pair)}
}

// AddImage registers an image with no annotations. Adding it again is a no-op.
func (s *Set) AddImage(imageID string) {
	if _, ok := s.byImage[imageID]; ok {
		return
	}
	s.order = append(s.order, imageID)
	s.byImage[imageID] = &Pair{}
}

// Put stores a for imageID under role, adding the image if needed.
func (s *Set) Put(imageID string, role pixelmap.Role, a *Annotation) {
	s.AddImage(imageID)
	p := s.byImage[imageID]
	switch role {
	case pixelmap.RoleLabels:
		p.Labels = a
	case pixelmap.RolePredictions:
		p.Predictions = a
	}
}

// Get returns the pair for imageID.
func (s *Set) Get(imageID string) (Pair, bool) {
	p, ok := s.byImage[imageID]
	if !ok {
		return Pair{}, false
	}
	return *p, true
}

// ImageIDs returns image ids in item order.
func (s *Set) ImageIDs() []string {
	return slices.Clone(s.order)
}

// Len returns the number of images.
func (s *Set) Len() int {
	return len(s.order)
}

// Count returns the number of stored annotations.
func (s *Set) Count() int {
	n := 0
	for _, p := range s.byImage {
		if p.Labels != nil {
			n++
		}
		if p.Predictions != nil {
			n++
		}
	}
	return n
}

// Sources returns the pixelmap of every annotation: per image in item order,
// labels before predictions.
func (s *Set) Sources() ([]pixelmap.Source, error) {
	var sources []pixelmap.Source
	for _, id := range s.order {
		p := s.byImage[id]
		for _, entry := range []struct {
			role pixelmap.Role
			a    *Annotation
		}{{pixelmap.RoleLabels, p.Labels}, {pixelmap.RolePredictions, p.Predictions}} {
			if entry.a == nil {
				continue
			}
			el, err := entry.a.Pixelmap()
			if err != nil {
				return nil, err
			}
			sources = append(sources, pixelmap.Source{ImageID: id, Role: entry.role, Pixelmap: el.ToPixelmap()})
		}
	}
	return sources, nil
}

// Apply writes remapped sources back into their annotations. Every source is
// resolved before any annotation is changed, so a failure leaves the set as
// it was.
func (s *Set) Apply(sources []pixelmap.Source) error {
	targets := make([]*Element, len(sources))
	for i, src := range sources {
		p, ok := s.byImage[src.ImageID]
		if !ok {
			return errors.NewNotFoundError("image", src.ImageID)
		}
		a := p.Labels
		if src.Role == pixelmap.RolePredictions {
			a = p.Predictions
		}
		if a == nil {
			return errors.NewNotFoundError(string(src.Role)+" annotation", src.ImageID)
		}
		el, err := a.Pixelmap()
		if err != nil {
			return err
		}
		targets[i] = el
	}
	for i, el := range targets {
		el.Apply(sources[i].Pixelmap)
	}
	return nil
}

// RankingImages converts the set to ranking input. Annotations without a
// pixelmap element are treated as absent.
func (s *Set) RankingImages() []ranking.Image {
	images := make([]ranking.Image, 0, len(s.order))
	for _, id := range s.order {
		p := s.byImage[id]
		img := ranking.Image{ID: id}
		if p.Labels != nil {
			if el, err := p.Labels.Pixelmap(); err == nil {
				pm := el.ToPixelmap()
				img.Labels = &pm
			}
		}
		if p.Predictions != nil {
			if el, err := p.Predictions.Pixelmap(); err == nil {
				pred := el.Predictions()
				img.Predictions = &pred
			}
		}
		images = append(images, img)
	}
	return images
}

// Certainty returns the certainty values of every predictions annotation,
// concatenated in item order.
func (s *Set) Certainty() []float64 {
	var all []float64
	for _, id := range s.order {
		p := s.byImage[id]
		if p.Predictions == nil {
			continue
		}
		el, err := p.Predictions.Pixelmap()
		if err != nil || el.User == nil {
			continue
		}
		all = append(all, el.User.Certainty...)
	}
	return all
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	c := &Set{order: slices.Clone(s.order), byImage: make(map[string]*Pair, len(s.byImage))}
	for id, p := range s.byImage {
		cp := &Pair{}
		if p.Labels != nil {
			cp.Labels = p.Labels.Clone()
		}
		if p.Predictions != nil {
			cp.Predictions = p.Predictions.Clone()
		}
		c.byImage[id] = cp
	}
	return c
}
