package learning

import (
	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/errors"
)

// AddCategory registers c and, when key is not empty, binds key to it. The
// hotkey takes over key from any category that held it. Adding a known label
// only rebinds the key.
func (s *Session) AddCategory(st State, c category.Category, key string) (State, error) {
	if st.Registry == nil || st.Hotkeys == nil {
		return st, errors.NewValidationError("session is not open").WithField("registry")
	}
	if c.Label == "" {
		return st, errors.NewValidationError("category label is required").WithField("label")
	}
	next := st.Clone()
	if next.Registry.Register(c) {
		s.logger.Info("category added", "label", c.Label)
	}
	idx, _ := next.Registry.IndexOf(c.Label)
	next.Hotkeys.Assign(idx, key)
	return next, nil
}
