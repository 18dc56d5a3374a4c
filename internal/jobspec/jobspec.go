// Package jobspec parses the XML descriptor that the job server publishes for a
// command line job and flattens it into a parameter lookup.
package jobspec

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/Iron-Ham/labelflow/internal/errors"
)

// CertaintyParameter is the parameter that lists the certainty metrics.
const CertaintyParameter = "certainty"

// Executable is a parsed job descriptor.
type Executable struct {
	Category    string
	Title       string
	Description string
	Version     string
	License     string
	Contributor string
	Panels      []Panel
}

// Panel groups parameter groups by visibility.
type Panel struct {
	Advanced bool
	Groups   []Group
}

// Group is one <parameters> block.
type Group struct {
	Label       string
	Description string
	Parameters  []Parameter
}

// Parameter is one input or output of the job.
type Parameter struct {
	ID          string
	Type        string // element name, e.g. "integer", "string-enumeration"
	Label       string
	Description string
	Default     string
	Flag        string
	LongFlag    string
	Channel     string
	Index       *int
	Values      []string // enumeration elements
	Constraints *Constraints
	Group       Position
}

// Constraints bounds a numeric parameter.
type Constraints struct {
	Minimum string
	Maximum string
	Step    string
}

// Position locates a parameter inside the descriptor.
type Position struct {
	PanelIndex int
	GroupIndex int
}

type xmlExecutable struct {
	XMLName     xml.Name   `xml:"executable"`
	Category    string     `xml:"category"`
	Title       string     `xml:"title"`
	Description string     `xml:"description"`
	Version     string     `xml:"version"`
	License     string     `xml:"license"`
	Contributor string     `xml:"contributor"`
	Groups      []xmlGroup `xml:"parameters"`
}

type xmlGroup struct {
	Advanced    string     `xml:"advanced,attr"`
	Label       string     `xml:"label"`
	Description string     `xml:"description"`
	Params      []xmlParam `xml:",any"`
}

type xmlParam struct {
	XMLName     xml.Name
	Name        string          `xml:"name"`
	Label       string          `xml:"label"`
	Description string          `xml:"description"`
	Default     string          `xml:"default"`
	Flag        string          `xml:"flag"`
	LongFlag    string          `xml:"longflag"`
	Channel     string          `xml:"channel"`
	Index       string          `xml:"index"`
	Elements    []string        `xml:"element"`
	Constraints *xmlConstraints `xml:"constraints"`
}

type xmlConstraints struct {
	Minimum string `xml:"minimum"`
	Maximum string `xml:"maximum"`
	Step    string `xml:"step"`
}

// Parse decodes a descriptor. Groups marked advanced="true" go to a second
// panel after the regular ones.
func Parse(data []byte) (*Executable, error) {
	var raw xmlExecutable
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.NewValidationError("invalid job descriptor").WithCause(err)
	}

	exe := &Executable{
		Category:    strings.TrimSpace(raw.Category),
		Title:       strings.TrimSpace(raw.Title),
		Description: strings.TrimSpace(raw.Description),
		Version:     strings.TrimSpace(raw.Version),
		License:     strings.TrimSpace(raw.License),
		Contributor: strings.TrimSpace(raw.Contributor),
	}

	var regular, advanced Panel
	advanced.Advanced = true
	for _, g := range raw.Groups {
		group := Group{
			Label:       strings.TrimSpace(g.Label),
			Description: strings.TrimSpace(g.Description),
		}
		for _, p := range g.Params {
			param, err := convertParam(p)
			if err != nil {
				return nil, err
			}
			group.Parameters = append(group.Parameters, param)
		}
		if strings.EqualFold(strings.TrimSpace(g.Advanced), "true") {
			advanced.Groups = append(advanced.Groups, group)
		} else {
			regular.Groups = append(regular.Groups, group)
		}
	}
	if len(regular.Groups) > 0 {
		exe.Panels = append(exe.Panels, regular)
	}
	if len(advanced.Groups) > 0 {
		exe.Panels = append(exe.Panels, advanced)
	}
	return exe, nil
}

func convertParam(p xmlParam) (Parameter, error) {
	id := strings.TrimSpace(p.Name)
	if id == "" {
		id = strings.TrimLeft(strings.TrimSpace(p.LongFlag), "-")
	}
	if id == "" {
		return Parameter{}, errors.NewValidationError("parameter has no name").WithValue(p.XMLName.Local)
	}
	param := Parameter{
		ID:          id,
		Type:        p.XMLName.Local,
		Label:       strings.TrimSpace(p.Label),
		Description: strings.TrimSpace(p.Description),
		Default:     strings.TrimSpace(p.Default),
		Flag:        strings.TrimSpace(p.Flag),
		LongFlag:    strings.TrimSpace(p.LongFlag),
		Channel:     strings.TrimSpace(p.Channel),
	}
	for _, e := range p.Elements {
		param.Values = append(param.Values, strings.TrimSpace(e))
	}
	if s := strings.TrimSpace(p.Index); s != "" {
		idx, err := strconv.Atoi(s)
		if err != nil {
			return Parameter{}, errors.NewValidationError("parameter index is not an integer").
				WithField(id).WithValue(s).WithCause(err)
		}
		param.Index = &idx
	}
	if c := p.Constraints; c != nil {
		param.Constraints = &Constraints{
			Minimum: strings.TrimSpace(c.Minimum),
			Maximum: strings.TrimSpace(c.Maximum),
			Step:    strings.TrimSpace(c.Step),
		}
	}
	return param, nil
}

// Flat is a descriptor with parameters keyed by ID.
type Flat struct {
	Title       string
	Description string
	Version     string
	Category    string
	Parameters  map[string]Parameter
}

// Flatten indexes every parameter of exe by ID, recording its panel and group.
// A later parameter with a duplicate ID replaces the earlier one.
func Flatten(exe *Executable) Flat {
	flat := Flat{
		Title:       exe.Title,
		Description: exe.Description,
		Version:     exe.Version,
		Category:    exe.Category,
		Parameters:  make(map[string]Parameter),
	}
	for pi, panel := range exe.Panels {
		for gi, group := range panel.Groups {
			for _, p := range group.Parameters {
				p.Group = Position{PanelIndex: pi, GroupIndex: gi}
				flat.Parameters[p.ID] = p
			}
		}
	}
	return flat
}

// CertaintyMetrics returns the enumerated values of the certainty parameter.
// A missing or empty enumeration yields an IncompleteConfigurationError.
func CertaintyMetrics(flat Flat) ([]string, error) {
	p, ok := flat.Parameters[CertaintyParameter]
	if !ok || len(p.Values) == 0 {
		return nil, errors.NewIncompleteConfigurationError(CertaintyParameter)
	}
	return append([]string(nil), p.Values...), nil
}
