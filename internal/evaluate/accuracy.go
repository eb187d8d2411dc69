// Package evaluate scores predictions against human-verified ground truth.
package evaluate

import (
	"strings"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// Comparison is the per-field outcome of scoring one prediction. Fields the
// ground truth leaves blank are not scored.
type Comparison struct {
	ImageID string               `json:"image_id"`
	Fields  map[model.Field]bool `json:"fields"`
	Overall bool                 `json:"overall"`
}

// Compare scores a prediction against ground truth. Matching is
// case-insensitive with surrounding whitespace ignored; canonicalization
// has already normalized separators and diacritics upstream. Overall is
// true when every scored field matches, and false when the ground truth
// scores nothing.
func Compare(pred model.ExtractionResult, gt model.GroundTruth) Comparison {
	c := Comparison{
		ImageID: gt.ImageID,
		Fields:  make(map[model.Field]bool),
	}
	for _, f := range model.Fields {
		want := strings.TrimSpace(gt.FieldValue(f))
		if want == "" {
			continue
		}
		c.Fields[f] = strings.EqualFold(strings.TrimSpace(pred.FieldValue(f)), want)
	}
	c.Overall = len(c.Fields) > 0
	for _, ok := range c.Fields {
		if !ok {
			c.Overall = false
		}
	}
	return c
}

// Summary aggregates comparisons across an evaluation run.
type Summary struct {
	Total          int                 `json:"total"`
	FieldScored    map[model.Field]int `json:"field_scored"`
	FieldMatched   map[model.Field]int `json:"field_matched"`
	OverallMatched int                 `json:"overall_matched"`
}

func NewSummary() *Summary {
	return &Summary{
		FieldScored:  make(map[model.Field]int),
		FieldMatched: make(map[model.Field]int),
	}
}

// Add folds one comparison into the summary.
func (s *Summary) Add(c Comparison) {
	s.Total++
	for f, ok := range c.Fields {
		s.FieldScored[f]++
		if ok {
			s.FieldMatched[f]++
		}
	}
	if c.Overall {
		s.OverallMatched++
	}
}

// FieldAccuracy returns the match percentage for a field over the images
// where the field was scored, or 0 when it never was.
func (s *Summary) FieldAccuracy(f model.Field) float64 {
	if s.FieldScored[f] == 0 {
		return 0
	}
	return 100 * float64(s.FieldMatched[f]) / float64(s.FieldScored[f])
}

// OverallAccuracy returns the percentage of images where every scored
// field matched.
func (s *Summary) OverallAccuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.OverallMatched) / float64(s.Total)
}
