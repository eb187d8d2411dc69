package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit
// testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetImage_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, owner_id, original_filename, storage_path, mime_type, size_bytes, uploaded_at`).
		WithArgs("missing-image").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetImage(context.Background(), "missing-image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPredictionByImage_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, image_id, owner_id, result, model_version, created_at FROM predictions`).
		WithArgs("img-1").
		WillReturnError(pgx.ErrNoRows)

	p, err := s.GetPredictionByImage(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetPredictionByImage_Hit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	version := "v2"
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, image_id, owner_id, result, model_version, created_at FROM predictions`).
		WithArgs("img-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "image_id", "owner_id", "result", "model_version", "created_at"}).
			AddRow("pred-1", "img-1", "u1", []byte(`{"brand":"WHIRLPOOL","confidence_scores":{"brand":0.95},"method":"llm"}`), &version, created))

	p, err := s.GetPredictionByImage(context.Background(), "img-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "WHIRLPOOL", p.Result.Brand)
	assert.Equal(t, 0.95, p.Result.ConfidenceScores[model.FieldBrand])
	assert.Equal(t, "v2", p.ModelVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertPrediction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO predictions`).
		WithArgs(pgxmock.AnyArg(), "img-1", "u1", pgxmock.AnyArg(), "hybrid", "", "LG", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p, err := s.InsertPrediction(context.Background(), model.Prediction{
		ImageID: "img-1",
		OwnerID: "u1",
		Result:  model.ExtractionResult{Brand: "LG", Method: model.MethodHybrid},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteImage_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM images WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteImage(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPredictions_SearchUsesFoldedTerm(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, image_id, owner_id, result, model_version, created_at FROM predictions WHERE 1=1 AND search_text ILIKE \$1`).
		WithArgs("%ELECTRO%", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "image_id", "owner_id", "result", "model_version", "created_at"}))

	_, err := s.ListPredictions(context.Background(), PredictionFilter{Search: "électro"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetGroundTruth_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM ground_truth WHERE image_id = \$1`).
		WithArgs("img-1").
		WillReturnError(pgx.ErrNoRows)

	gt, err := s.GetGroundTruth(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Nil(t, gt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertGroundTruth(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO ground_truth .* ON CONFLICT \(image_id\) DO UPDATE SET`).
		WithArgs(pgxmock.AnyArg(), "img-1", "u1", "WHIRLPOOL", "", "", "", "", "", true, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	gt, err := s.UpsertGroundTruth(context.Background(), model.GroundTruth{
		ImageID: "img-1", OwnerID: "u1", Brand: "WHIRLPOOL", Verified: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, gt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ImportGroundTruth_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	n, err := s.ImportGroundTruth(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
