package jobspec

import (
	"slices"
	"testing"

	"github.com/Iron-Ham/labelflow/internal/errors"
)

const descriptor = `<?xml version="1.0" encoding="UTF-8"?>
<executable>
  <category>HistomicsTK</category>
  <title>Superpixel Classification</title>
  <description>Calculate superpixels, features, and train a model</description>
  <version>0.1.0</version>
  <parameters>
    <label>IO</label>
    <description>Input/output parameters</description>
    <directory>
      <name>images</name>
      <label>Image Directory</label>
      <channel>input</channel>
      <index>0</index>
    </directory>
    <string-enumeration>
      <name>certainty</name>
      <longflag>certainty</longflag>
      <label>Certainty Metric</label>
      <default>confidence</default>
      <element>confidence</element>
      <element>margin</element>
      <element>entropy</element>
    </string-enumeration>
  </parameters>
  <parameters advanced="true">
    <label>Superpixels</label>
    <integer>
      <longflag>radius</longflag>
      <label>Superpixel Radius</label>
      <default>100</default>
      <constraints>
        <minimum>1</minimum>
        <maximum>1000</maximum>
      </constraints>
    </integer>
  </parameters>
</executable>`

func TestParse(t *testing.T) {
	exe, err := Parse([]byte(descriptor))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if exe.Title != "Superpixel Classification" || exe.Version != "0.1.0" {
		t.Errorf("header = %q %q", exe.Title, exe.Version)
	}
	if len(exe.Panels) != 2 {
		t.Fatalf("Panels = %d, want 2", len(exe.Panels))
	}
	if exe.Panels[0].Advanced || !exe.Panels[1].Advanced {
		t.Error("advanced group should be in the second panel")
	}

	io := exe.Panels[0].Groups[0]
	if io.Label != "IO" || len(io.Parameters) != 2 {
		t.Fatalf("IO group = %+v", io)
	}
	images := io.Parameters[0]
	if images.Type != "directory" || images.Index == nil || *images.Index != 0 || images.Channel != "input" {
		t.Errorf("images parameter = %+v", images)
	}
}

func TestFlattenAndCertaintyMetrics(t *testing.T) {
	exe, err := Parse([]byte(descriptor))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	flat := Flatten(exe)

	radius, ok := flat.Parameters["radius"]
	if !ok {
		t.Fatal("radius should be keyed by its long flag")
	}
	if radius.Group != (Position{PanelIndex: 1, GroupIndex: 0}) {
		t.Errorf("radius position = %+v", radius.Group)
	}
	if radius.Constraints == nil || radius.Constraints.Maximum != "1000" {
		t.Errorf("radius constraints = %+v", radius.Constraints)
	}

	metrics, err := CertaintyMetrics(flat)
	if err != nil {
		t.Fatalf("CertaintyMetrics() error: %v", err)
	}
	if want := []string{"confidence", "margin", "entropy"}; !slices.Equal(metrics, want) {
		t.Errorf("CertaintyMetrics() = %v, want %v", metrics, want)
	}
}

func TestCertaintyMetrics_Incomplete(t *testing.T) {
	tests := []struct {
		name string
		flat Flat
	}{
		{"missing parameter", Flat{Parameters: map[string]Parameter{}}},
		{"no values", Flat{Parameters: map[string]Parameter{"certainty": {ID: "certainty"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics, err := CertaintyMetrics(tt.flat)
			if metrics != nil {
				t.Errorf("metrics = %v, want nil", metrics)
			}
			if !errors.Is(err, errors.ErrIncompleteConfiguration) {
				t.Errorf("error = %v, want incomplete configuration", err)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"not xml",
		"<executable><parameters><integer><label>x</label></integer></parameters></executable>",
		"<executable><parameters><integer><name>n</name><index>first</index></integer></parameters></executable>",
	}
	for _, data := range tests {
		if _, err := Parse([]byte(data)); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("Parse(%q) error = %v, want invalid input", data, err)
		}
	}
}
