package learning

import (
	"slices"

	"github.com/Iron-Ham/labelflow/internal/annotation"
	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/groupconfig"
	"github.com/Iron-Ham/labelflow/internal/ranking"
	"github.com/Iron-Ham/labelflow/internal/workflow"
)

// State is everything a session knows about its training folder. Phases take
// a State and return a new one; a State is never modified once returned.
type State struct {
	Config   *groupconfig.Document
	Registry *category.Registry
	Hotkeys  *category.Hotkeys

	Folders     []annotation.Folder
	Images      []annotation.Item
	Annotations *annotation.Set

	Epoch int
	Stage workflow.Stage

	Records []ranking.Record
	// AverageCertainty is meaningful only when HasCertainty is set.
	AverageCertainty float64
	HasCertainty     bool
	CertaintyMetrics []string

	LastJobID string

	// unsaved lists the images whose labels were remapped since the state
	// was last committed.
	unsaved []string
}

// Clone returns a deep copy that phases may modify.
func (s State) Clone() State {
	c := s
	if s.Config != nil {
		doc := *s.Config
		if s.Config.AnnotationGroups != nil {
			groups := *s.Config.AnnotationGroups
			groups.Groups = slices.Clone(groups.Groups)
			doc.AnnotationGroups = &groups
		}
		c.Config = &doc
	}
	if s.Registry != nil {
		c.Registry = s.Registry.Clone()
	}
	if s.Hotkeys != nil {
		c.Hotkeys = s.Hotkeys.Clone()
	}
	if s.Annotations != nil {
		c.Annotations = s.Annotations.Clone()
	}
	c.Folders = slices.Clone(s.Folders)
	c.Images = slices.Clone(s.Images)
	c.Records = slices.Clone(s.Records)
	c.CertaintyMetrics = slices.Clone(s.CertaintyMetrics)
	c.unsaved = slices.Clone(s.unsaved)
	return c
}

// Folder returns the child folder named name.
func (s State) Folder(name string) (annotation.Folder, bool) {
	i := slices.IndexFunc(s.Folders, func(f annotation.Folder) bool { return f.Name == name })
	if i < 0 {
		return annotation.Folder{}, false
	}
	return s.Folders[i], true
}

// DefaultLabel returns the label of the reserved default category.
func (s State) DefaultLabel() string {
	if s.Registry == nil {
		return groupconfig.DefaultGroupID
	}
	return s.Registry.Default().Label
}
