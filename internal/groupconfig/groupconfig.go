// Package groupconfig reads and writes the folder configuration document that
// declares annotation groups, and turns those groups into the canonical
// category registry and hotkey bindings.
package groupconfig

import (
	"context"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/labelflow/internal/category"
	"github.com/Iron-Ham/labelflow/internal/errors"
)

// FileName is the configuration document kept in each training folder.
const FileName = ".histomicsui_config.yaml"

// Default colors.
const (
	DefaultGroupID   = "default"
	DefaultFillColor = "rgba(0, 0, 0, 0)"
	DefaultLineColor = "rgba(0, 0, 0, 1)"
	// FallbackLineColor is written for categories without a stroke color.
	FallbackLineColor = "rgba(0,0,0,1)"
	DefaultLineWidth  = 2
)

// Store reads and writes the configuration document of a folder. Reading a
// folder without one yields an empty document.
type Store interface {
	ReadConfig(ctx context.Context, folderID string) (*Document, error)
	WriteConfig(ctx context.Context, folderID string, doc *Document) error
}

// Document is the folder configuration. Keys other than annotationGroups are
// kept so that writing the document back does not lose them.
type Document struct {
	AnnotationGroups *Groups        `yaml:"annotationGroups,omitempty"`
	Extra            map[string]any `yaml:",inline"`
}

// Groups is the annotationGroups section.
type Groups struct {
	ReplaceGroups bool           `yaml:"replaceGroups"`
	DefaultGroup  string         `yaml:"defaultGroup"`
	Groups        []Group        `yaml:"groups"`
	Extra         map[string]any `yaml:",inline"`
}

// Group declares one category.
type Group struct {
	ID        string         `yaml:"id"`
	FillColor string         `yaml:"fillColor,omitempty"`
	LineColor string         `yaml:"lineColor,omitempty"`
	LineWidth float64        `yaml:"lineWidth,omitempty"`
	HotKey    Key            `yaml:"hotKey,omitempty"`
	Extra     map[string]any `yaml:",inline"`
}

// Key is a hotkey. Documents may write it as a number or a string.
type Key string

// UnmarshalYAML accepts any scalar.
func (k *Key) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: hotKey must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*k = ""
		return nil
	}
	*k = Key(node.Value)
	return nil
}

// DefaultGroups returns the groups used when a folder has none configured.
func DefaultGroups() *Groups {
	return &Groups{
		ReplaceGroups: true,
		DefaultGroup:  DefaultGroupID,
		Groups: []Group{{
			ID:        DefaultGroupID,
			FillColor: DefaultFillColor,
			LineColor: DefaultLineColor,
			LineWidth: DefaultLineWidth,
		}},
	}
}

// Decode parses a document. Empty input yields an empty document. JSON input is
// accepted since it is valid YAML.
func Decode(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, errors.NewValidationError("invalid configuration document").WithCause(err)
	}
	return doc, nil
}

// Encode renders doc as YAML.
func Encode(doc *Document) ([]byte, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encode configuration document")
	}
	return out, nil
}

// WithDefaults returns a copy of doc with annotationGroups filled from
// DefaultGroups when missing. doc itself is never modified; Extra is shared.
func WithDefaults(doc *Document) *Document {
	c := &Document{}
	if doc != nil {
		*c = *doc
	}
	if c.AnnotationGroups == nil {
		c.AnnotationGroups = DefaultGroups()
		return c
	}
	groups := *c.AnnotationGroups
	groups.Groups = slices.Clone(groups.Groups)
	c.AnnotationGroups = &groups
	return c
}

// DefaultGroupEntry returns the group named by defaultGroup.
func (g *Groups) DefaultGroupEntry() (Group, error) {
	for _, grp := range g.Groups {
		if grp.ID == g.DefaultGroup {
			return grp, nil
		}
	}
	return Group{}, errors.NewValidationError("default group is not defined").
		WithField("annotationGroups.defaultGroup").WithValue(g.DefaultGroup)
}

func (g Group) category() category.Category {
	return category.Category{Label: g.ID, FillColor: g.FillColor, StrokeColor: g.LineColor}
}

// Seed builds the registry and hotkeys from doc: the default group first, then
// every group in order. A group's hotKey is assigned to its canonical index;
// groups without one keep the default binding for that index.
func Seed(doc *Document) (*category.Registry, *category.Hotkeys, error) {
	groups := WithDefaults(doc).AnnotationGroups
	def, err := groups.DefaultGroupEntry()
	if err != nil {
		return nil, nil, err
	}

	reg := category.NewRegistry(def.category())
	hotkeys := category.DefaultHotkeys()
	for _, g := range groups.Groups {
		if g.ID == "" {
			return nil, nil, errors.NewValidationError("group has no id").WithField("annotationGroups.groups")
		}
		reg.Register(g.category())
		idx, _ := reg.IndexOf(g.ID)
		hotkeys.Assign(idx, string(g.HotKey))
	}
	return reg, hotkeys, nil
}

// Update returns a copy of doc whose groups are the registry's categories in
// canonical order, with their bound hotkeys. Line widths of existing groups
// are kept.
func Update(doc *Document, reg *category.Registry, hotkeys *category.Hotkeys) *Document {
	doc = WithDefaults(doc)
	widths := make(map[string]float64, len(doc.AnnotationGroups.Groups))
	for _, g := range doc.AnnotationGroups.Groups {
		widths[g.ID] = g.LineWidth
	}

	cats := reg.Categories()
	groups := make([]Group, 0, len(cats))
	for i, c := range cats {
		lineColor := c.StrokeColor
		if lineColor == "" {
			lineColor = FallbackLineColor
		}
		key, _ := hotkeys.KeyFor(i)
		groups = append(groups, Group{
			ID:        c.Label,
			FillColor: c.FillColor,
			LineColor: lineColor,
			LineWidth: widths[c.Label],
			HotKey:    Key(key),
		})
	}
	doc.AnnotationGroups.Groups = groups
	return doc
}
