// Package pixelmap holds per-image superpixel category maps and rewrites their
// category indices against a canonical [category.Registry].
//
// Remapping is two-pass: every source is registered first, then every source is
// remapped. Remapping before the registry has seen every label would give an
// incomplete canonical order.
package pixelmap

import (
	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/errors"
)

// Role identifies which annotation a pixelmap came from.
type Role string

const (
	// RoleLabels is the human-labeled pixelmap.
	RoleLabels Role = "labels"
	// RolePredictions is the model-predicted pixelmap.
	RolePredictions Role = "predictions"
)

// Pixelmap is one image's superpixel category map. Values[i] is the index into
// Categories for superpixel i.
type Pixelmap struct {
	Values     []int
	Categories []category.Category
	Boundaries bool
	Scale      float64
}

// CategoryAt returns the category referenced by superpixel i.
func (p Pixelmap) CategoryAt(i int) (category.Category, bool) {
	if i < 0 || i >= len(p.Values) {
		return category.Category{}, false
	}
	v := p.Values[i]
	if v < 0 || v >= len(p.Categories) {
		return category.Category{}, false
	}
	return p.Categories[v], true
}

// Clone returns a deep copy.
func (p Pixelmap) Clone() Pixelmap {
	c := p
	c.Values = append([]int(nil), p.Values...)
	c.Categories = append([]category.Category(nil), p.Categories...)
	return c
}

// Source names a pixelmap for error reporting and batch remapping.
type Source struct {
	ImageID  string
	Role     Role
	Pixelmap Pixelmap
}

// Register adds every category of every source to reg, in source order.
func Register(reg *category.Registry, sources ...Source) {
	for _, s := range sources {
		reg.RegisterAll(s.Pixelmap.Categories)
	}
}

// Remap translates p's values from its local category list to canonical indices
// in reg and replaces Categories with the full canonical set. p is not modified.
func Remap(p Pixelmap, reg *category.Registry) (Pixelmap, error) {
	local := make([]int, len(p.Categories))
	for i, c := range p.Categories {
		idx, ok := reg.IndexOf(c.Label)
		if !ok {
			return Pixelmap{}, errors.NewUnregisteredLabelError("", c.Label)
		}
		local[i] = idx
	}

	values := make([]int, len(p.Values))
	for i, v := range p.Values {
		if v < 0 || v >= len(local) {
			return Pixelmap{}, errors.NewMissingReferenceError("", i, v)
		}
		values[i] = local[v]
	}

	return Pixelmap{
		Values:     values,
		Categories: reg.Categories(),
		Boundaries: p.Boundaries,
		Scale:      p.Scale,
	}, nil
}

// RemapAll remaps every source against reg. It is all-or-nothing: on the first
// failure no remapped source is returned.
func RemapAll(reg *category.Registry, sources []Source) ([]Source, error) {
	out := make([]Source, len(sources))
	for i, s := range sources {
		p, err := Remap(s.Pixelmap, reg)
		if err != nil {
			var mr *errors.MissingReferenceError
			if errors.As(err, &mr) {
				mr.Source = string(s.Role)
				mr.WithImage(s.ImageID)
			}
			return nil, err
		}
		out[i] = Source{ImageID: s.ImageID, Role: s.Role, Pixelmap: p}
	}
	return out, nil
}

// Restore maps canonical values back to indices into the original local list.
// It is the inverse of Remap for a source whose categories were all registered.
func Restore(remapped Pixelmap, original []category.Category) ([]int, error) {
	localByLabel := make(map[string]int, len(original))
	for i, c := range original {
		if _, ok := localByLabel[c.Label]; !ok {
			localByLabel[c.Label] = i
		}
	}
	values := make([]int, len(remapped.Values))
	for i := range remapped.Values {
		c, ok := remapped.CategoryAt(i)
		if !ok {
			return nil, errors.NewMissingReferenceError("", i, remapped.Values[i])
		}
		local, ok := localByLabel[c.Label]
		if !ok {
			return nil, errors.NewUnregisteredLabelError("", c.Label)
		}
		values[i] = local
	}
	return values, nil
}
