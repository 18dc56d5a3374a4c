// Package ranking orders superpixel predictions by model certainty so the least
// certain regions are reviewed first.
//
// The ranked sequence is recomputed wholesale from the current pixelmaps on
// every call. Both pixelmaps of an image must already be expressed against the
// canonical registry.
package ranking

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Iron-Ham/labelflow/internal/errors"
	"github.com/Iron-Ham/labelflow/internal/pixelmap"
)

// Unset marks a superpixel without a human-selected category.
const Unset = -1

// Agreement compares the predicted category of a superpixel with its label.
type Agreement string

const (
	AgreementUnset Agreement = ""
	AgreementYes   Agreement = "Yes"
	AgreementNo    Agreement = "No"
)

// String returns a display form; Unset renders as "-".
func (a Agreement) String() string {
	if a == AgreementUnset {
		return "-"
	}
	return string(a)
}

// ParseAgreement converts a user-supplied filter value. It accepts yes, no and unset
// in any case.
func ParseAgreement(s string) (Agreement, bool) {
	switch strings.ToLower(s) {
	case "yes":
		return AgreementYes, true
	case "no":
		return AgreementNo, true
	case "unset", "-":
		return AgreementUnset, true
	}
	return AgreementUnset, false
}

// Predictions is the model output for one image.
type Predictions struct {
	Pixelmap          pixelmap.Pixelmap
	SuperpixelImageID string
	Certainty         []float64
	Confidence        []float64
	// BBox holds four values per superpixel.
	BBox []float64
}

// Image groups the sources available for one image. Either pointer may be nil.
type Image struct {
	ID          string
	Labels      *pixelmap.Pixelmap
	Predictions *Predictions
}

// Record is one superpixel prediction ready for review.
type Record struct {
	ImageID           string
	SuperpixelImageID string
	Index             int
	Certainty         float64
	Confidence        float64
	Prediction        int
	Selected          int
	Agreement         Agreement
	BBox              [4]float64
	Scale             float64
	Boundaries        bool
}

// Classify compares the predicted and selected labels of superpixel index.
// A label equal to defaultLabel means no decision has been made yet.
func Classify(index int, predictions, labels pixelmap.Pixelmap, defaultLabel string) (Agreement, error) {
	selected, ok := labels.CategoryAt(index)
	if !ok {
		return AgreementUnset, missing(pixelmap.RoleLabels, index, labels)
	}
	if selected.Label == defaultLabel {
		return AgreementUnset, nil
	}
	predicted, ok := predictions.CategoryAt(index)
	if !ok {
		return AgreementUnset, missing(pixelmap.RolePredictions, index, predictions)
	}
	if predicted.Label == selected.Label {
		return AgreementYes, nil
	}
	return AgreementNo, nil
}

func missing(role pixelmap.Role, index int, p pixelmap.Pixelmap) error {
	value := -1
	if index >= 0 && index < len(p.Values) {
		value = p.Values[index]
	}
	return errors.NewMissingReferenceError(string(role), index, value)
}

// Rank builds one Record per certainty entry of every image that has predictions
// and returns them sorted ascending by certainty. Ties keep enumeration order.
func Rank(images []Image, defaultLabel string) ([]Record, error) {
	var records []Record
	for _, img := range images {
		if img.Predictions == nil {
			// Newly added images have no predictions yet.
			continue
		}
		recs, err := imageRecords(img, defaultLabel)
		if err != nil {
			var mr *errors.MissingReferenceError
			if errors.As(err, &mr) {
				mr.WithImage(img.ID)
			}
			return nil, err
		}
		records = append(records, recs...)
	}

	slices.SortStableFunc(records, func(a, b Record) int {
		return cmp.Compare(a.Certainty, b.Certainty)
	})
	return records, nil
}

func imageRecords(img Image, defaultLabel string) ([]Record, error) {
	pred := img.Predictions
	records := make([]Record, 0, len(pred.Certainty))
	for i, certainty := range pred.Certainty {
		if i >= len(pred.Pixelmap.Values) {
			return nil, missing(pixelmap.RolePredictions, i, pred.Pixelmap)
		}
		rec := Record{
			ImageID:           img.ID,
			SuperpixelImageID: pred.SuperpixelImageID,
			Index:             i,
			Certainty:         certainty,
			Prediction:        pred.Pixelmap.Values[i],
			Selected:          Unset,
			Agreement:         AgreementUnset,
			Scale:             pred.Pixelmap.Scale,
			Boundaries:        pred.Pixelmap.Boundaries,
		}
		if i < len(pred.Confidence) {
			rec.Confidence = pred.Confidence[i]
		}
		if end := i*4 + 4; end <= len(pred.BBox) {
			copy(rec.BBox[:], pred.BBox[i*4:end])
		}
		if img.Labels != nil {
			agreement, err := Classify(i, pred.Pixelmap, *img.Labels, defaultLabel)
			if err != nil {
				return nil, err
			}
			rec.Agreement = agreement
			rec.Selected = img.Labels.Values[i]
		}
		records = append(records, rec)
	}
	return records, nil
}

// AverageCertainty returns the mean of certainty, or false when it is empty.
func AverageCertainty(certainty []float64) (float64, bool) {
	if len(certainty) == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range certainty {
		sum += c
	}
	return sum / float64(len(certainty)), true
}

// Filter returns the records whose agreement equals a, preserving order.
func Filter(records []Record, a Agreement) []Record {
	var out []Record
	for _, r := range records {
		if r.Agreement == a {
			out = append(out, r)
		}
	}
	return out
}
