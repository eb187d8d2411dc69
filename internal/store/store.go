// Package store persists images, predictions, and ground truth. Two
// drivers implement the same interface: SQLite for single-user CLI use and
// Postgres for shared deployments.
package store

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// PredictionFilter specifies criteria for listing predictions.
type PredictionFilter struct {
	OwnerID string       `json:"owner_id,omitempty"`
	Method  model.Method `json:"method,omitempty"`
	// Search matches brand, product family, model number, or serial number.
	// Diacritics and case are ignored.
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Images
	CreateImage(ctx context.Context, img model.Image) (*model.Image, error)
	GetImage(ctx context.Context, id string) (*model.Image, error)
	// DeleteImage removes the image row and cascades to its predictions
	// and ground truth.
	DeleteImage(ctx context.Context, id string) error

	// Predictions
	InsertPrediction(ctx context.Context, p model.Prediction) (*model.Prediction, error)
	// GetPredictionByImage returns the most recent prediction for an image,
	// or nil when none exists.
	GetPredictionByImage(ctx context.Context, imageID string) (*model.Prediction, error)
	ListPredictions(ctx context.Context, filter PredictionFilter) ([]model.Prediction, error)

	// Ground truth
	UpsertGroundTruth(ctx context.Context, gt model.GroundTruth) (*model.GroundTruth, error)
	// GetGroundTruth returns the ground truth for an image, or nil when
	// none has been recorded.
	GetGroundTruth(ctx context.Context, imageID string) (*model.GroundTruth, error)
	// ImportGroundTruth bulk-upserts entries keyed by image ID and returns
	// the number of rows written.
	ImportGroundTruth(ctx context.Context, entries []model.GroundTruth) (int64, error)
	// ListGroundTruth returns all ground truth, optionally filtered by
	// owner, ordered by creation time.
	ListGroundTruth(ctx context.Context, ownerID string) ([]model.GroundTruth, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

var searchFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldSearchTerm strips diacritics and uppercases so search terms compare
// against canonicalized stored values.
func foldSearchTerm(s string) string {
	out, _, err := transform.String(searchFold, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(out))
}

// predictionSearchText builds the folded haystack stored alongside each
// prediction. Canonical product families keep their diacritics, so matching
// folded terms against the result columns directly would miss them; both
// sides of the comparison go through the same fold instead.
func predictionSearchText(r model.ExtractionResult) string {
	var parts []string
	for _, v := range []string{r.Brand, r.ProductFamily, r.ModelNumber, r.SerialNumber} {
		if v == "" {
			continue
		}
		parts = append(parts, foldSearchTerm(v))
	}
	return strings.Join(parts, " ")
}
