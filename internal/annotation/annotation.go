// Package annotation models annotation records as the annotation store keeps
// them and converts their pixelmap elements to and from [pixelmap.Pixelmap].
package annotation

import (
	"context"
	"time"

	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/pixelmap"
	"github.com/Iron-Ham/labelflow/internal/ranking"
)

// ElementPixelmap is the element type that carries superpixel values.
const ElementPixelmap = "pixelmap"

// Annotation is one stored annotation record.
type Annotation struct {
	ID         string    `json:"_id"`
	ItemID     string    `json:"itemId"`
	Created    time.Time `json:"created,omitzero"`
	Annotation Body      `json:"annotation"`
}

// Body is the user-visible part of an annotation.
type Body struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Elements    []Element `json:"elements"`
}

// Element is one pixelmap element. Only the fields the workflow reads are modeled.
type Element struct {
	ID         string             `json:"id,omitempty"`
	Type       string             `json:"type"`
	GirderID   string             `json:"girderId,omitempty"`
	Values     []int              `json:"values"`
	Categories []ElementCategory  `json:"categories"`
	Boundaries bool               `json:"boundaries"`
	Transform  *Transform         `json:"transform,omitempty"`
	User       *ElementUserFields `json:"user,omitempty"`
}

// ElementCategory is a category as stored on an element.
type ElementCategory struct {
	Label       string `json:"label"`
	FillColor   string `json:"fillColor,omitempty"`
	StrokeColor string `json:"strokeColor,omitempty"`
}

// Transform scales element coordinates to the base image.
type Transform struct {
	Matrix [][]float64 `json:"matrix,omitempty"`
}

// Scale returns the first matrix coefficient, or 1 without a transform.
func (t *Transform) Scale() float64 {
	if t == nil || len(t.Matrix) == 0 || len(t.Matrix[0]) == 0 || t.Matrix[0][0] == 0 {
		return 1
	}
	return t.Matrix[0][0]
}

// ElementUserFields carries per-superpixel model outputs.
type ElementUserFields struct {
	Certainty  []float64 `json:"certainty,omitempty"`
	Confidence []float64 `json:"confidence,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// Summary is an annotation as listed for an item, without elements.
type Summary struct {
	ID      string    `json:"_id"`
	ItemID  string    `json:"itemId"`
	Created time.Time `json:"created,omitzero"`
	Name    string    `json:"name"`
}

// AnnotationID implements workflow.Named.
func (s Summary) AnnotationID() string { return s.ID }

// AnnotationName implements workflow.Named.
func (s Summary) AnnotationName() string { return s.Name }

// Item is an entry of a folder. Only items with LargeImage set are images.
type Item struct {
	ID         string         `json:"_id"`
	Name       string         `json:"name"`
	FolderID   string         `json:"folderId"`
	LargeImage map[string]any `json:"largeImage,omitempty"`
}

// IsImage reports whether the item is a large image.
func (i Item) IsImage() bool {
	return i.LargeImage != nil
}

// Folder is a child folder of the training folder.
type Folder struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

// Store reads and writes annotation records.
type Store interface {
	// ListAnnotations returns the summaries for itemID, newest first.
	ListAnnotations(ctx context.Context, itemID string) ([]Summary, error)
	Annotation(ctx context.Context, id string) (*Annotation, error)
	SaveAnnotation(ctx context.Context, a *Annotation) error
}

// ItemStore lists folder contents.
type ItemStore interface {
	ListItems(ctx context.Context, folderID string) ([]Item, error)
	ListFolders(ctx context.Context, parentID string) ([]Folder, error)
}

// Pixelmap returns the first pixelmap element, or an error if there is none.
func (a *Annotation) Pixelmap() (*Element, error) {
	for i := range a.Annotation.Elements {
		if a.Annotation.Elements[i].Type == ElementPixelmap {
			return &a.Annotation.Elements[i], nil
		}
	}
	return nil, errors.NewNotFoundError("pixelmap element", a.ID)
}

// ToPixelmap converts the element to a pixelmap.
func (e *Element) ToPixelmap() pixelmap.Pixelmap {
	cats := make([]category.Category, len(e.Categories))
	for i, c := range e.Categories {
		cats[i] = category.Category{Label: c.Label, FillColor: c.FillColor, StrokeColor: c.StrokeColor}
	}
	return pixelmap.Pixelmap{
		Values:     append([]int(nil), e.Values...),
		Categories: cats,
		Boundaries: e.Boundaries,
		Scale:      e.Transform.Scale(),
	}
}

// Apply writes a remapped pixelmap back into the element.
func (e *Element) Apply(p pixelmap.Pixelmap) {
	e.Values = append([]int(nil), p.Values...)
	e.Categories = make([]ElementCategory, len(p.Categories))
	for i, c := range p.Categories {
		e.Categories[i] = ElementCategory{Label: c.Label, FillColor: c.FillColor, StrokeColor: c.StrokeColor}
	}
}

// Predictions converts the element to ranking input.
func (e *Element) Predictions() ranking.Predictions {
	pred := ranking.Predictions{
		Pixelmap:          e.ToPixelmap(),
		SuperpixelImageID: e.GirderID,
	}
	if e.User != nil {
		pred.Certainty = append([]float64(nil), e.User.Certainty...)
		pred.Confidence = append([]float64(nil), e.User.Confidence...)
		pred.BBox = append([]float64(nil), e.User.BBox...)
	}
	return pred
}

// Clone returns a deep copy of the annotation.
func (a *Annotation) Clone() *Annotation {
	c := *a
	c.Annotation.Elements = make([]Element, len(a.Annotation.Elements))
	for i, e := range a.Annotation.Elements {
		e.Values = append([]int(nil), e.Values...)
		e.Categories = append([]ElementCategory(nil), e.Categories...)
		if e.User != nil {
			u := *e.User
			e.User = &u
		}
		c.Annotation.Elements[i] = e
	}
	return &c
}
