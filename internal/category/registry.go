// Package category maintains the canonical category ordering shared by every
// pixelmap in a labeling session.
//
// A [Registry] is an explicit ordered map: a slice of entries plus a
// label -> index lookup. Labels are the only identity. The default category is
// registered at construction and therefore always holds index 0. Indices are
// assigned first-seen-wins and never change for the lifetime of the registry;
// there is no removal.
//
// [Hotkeys] binds keyboard keys to canonical indices so a reviewer can assign
// a category with a single key press.
package category

// Category is a labeling class. Label is the identity; colors are display metadata.
type Category struct {
	Label       string `json:"label"`
	FillColor   string `json:"fillColor,omitempty"`
	StrokeColor string `json:"strokeColor,omitempty"`
}

// Registry is the canonical label -> index mapping for one session.
// It is not safe for concurrent mutation; callers own it and pass it between
// workflow phases explicitly.
type Registry struct {
	entries []Category
	index   map[string]int
}

// NewRegistry creates a Registry with def pre-registered at index 0.
func NewRegistry(def Category) *Registry {
	r := &Registry{index: make(map[string]int)}
	r.Register(def)
	return r
}

// Register inserts c if its label has not been seen. It reports whether the
// category was added. Re-registering an existing label keeps the original colors.
func (r *Registry) Register(c Category) bool {
	if _, ok := r.index[c.Label]; ok {
		return false
	}
	r.index[c.Label] = len(r.entries)
	r.entries = append(r.entries, c)
	return true
}

// RegisterAll registers every category in order and returns how many were new.
func (r *Registry) RegisterAll(cats []Category) int {
	added := 0
	for _, c := range cats {
		if r.Register(c) {
			added++
		}
	}
	return added
}

// IndexOf returns the canonical index for label.
func (r *Registry) IndexOf(label string) (int, bool) {
	i, ok := r.index[label]
	return i, ok
}

// Contains reports whether label has been registered.
func (r *Registry) Contains(label string) bool {
	_, ok := r.index[label]
	return ok
}

// At returns the category at canonical index i.
func (r *Registry) At(i int) (Category, bool) {
	if i < 0 || i >= len(r.entries) {
		return Category{}, false
	}
	return r.entries[i], true
}

// Default returns the reserved category at index 0.
func (r *Registry) Default() Category {
	return r.entries[0]
}

// Len returns the number of registered categories.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Categories returns a copy of the categories in canonical order.
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.entries))
	copy(out, r.entries)
	return out
}

// Labels returns the labels in canonical order.
func (r *Registry) Labels() []string {
	out := make([]string, len(r.entries))
	for i, c := range r.entries {
		out[i] = c.Label
	}
	return out
}

// Clone returns an independent copy. Phases that may fail work on a clone so the
// previous registry stays intact.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		entries: r.Categories(),
		index:   make(map[string]int, len(r.index)),
	}
	for k, v := range r.index {
		c.index[k] = v
	}
	return c
}
