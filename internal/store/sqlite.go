package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Foreign keys are enabled so image deletion cascades.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS images (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	storage_path      TEXT NOT NULL,
	mime_type         TEXT NOT NULL,
	size_bytes        INTEGER NOT NULL,
	uploaded_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS predictions (
	id            TEXT PRIMARY KEY,
	image_id      TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	owner_id      TEXT NOT NULL,
	result        TEXT NOT NULL,
	method        TEXT NOT NULL,
	model_version TEXT,
	search_text   TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ground_truth (
	id             TEXT PRIMARY KEY,
	image_id       TEXT NOT NULL UNIQUE REFERENCES images(id) ON DELETE CASCADE,
	owner_id       TEXT NOT NULL,
	brand          TEXT,
	product_family TEXT,
	model_number   TEXT,
	serial_number  TEXT,
	verified_by    TEXT,
	notes          TEXT,
	verified       INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_images_owner ON images(owner_id);
CREATE INDEX IF NOT EXISTS idx_predictions_image ON predictions(image_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_owner ON predictions(owner_id);
CREATE INDEX IF NOT EXISTS idx_ground_truth_image ON ground_truth(image_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateImage(ctx context.Context, img model.Image) (*model.Image, error) {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (id, owner_id, original_filename, storage_path, mime_type, size_bytes, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.OwnerID, img.OriginalFilename, img.StoragePath, img.MIMEType, img.SizeBytes, img.UploadedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert image")
	}
	return &img, nil
}

func (s *SQLiteStore) GetImage(ctx context.Context, id string) (*model.Image, error) {
	var img model.Image
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, original_filename, storage_path, mime_type, size_bytes, uploaded_at
		 FROM images WHERE id = ?`, id,
	).Scan(&img.ID, &img.OwnerID, &img.OriginalFilename, &img.StoragePath, &img.MIMEType, &img.SizeBytes, &img.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("image not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get image")
	}
	return &img, nil
}

func (s *SQLiteStore) DeleteImage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete image %s", id)
	}
	return checkRowsAffected(res, "image", id)
}

func (s *SQLiteStore) InsertPrediction(ctx context.Context, p model.Prediction) (*model.Prediction, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	resultJSON, err := json.Marshal(p.Result)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, image_id, owner_id, result, method, model_version, search_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ImageID, p.OwnerID, string(resultJSON), string(p.Result.Method), p.ModelVersion,
		predictionSearchText(p.Result), p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert prediction for image %s", p.ImageID)
	}
	return &p, nil
}

func (s *SQLiteStore) GetPredictionByImage(ctx context.Context, imageID string) (*model.Prediction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, image_id, owner_id, result, model_version, created_at
		 FROM predictions WHERE image_id = ?
		 ORDER BY created_at DESC LIMIT 1`, imageID,
	)
	p, err := scanPrediction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get prediction")
	}
	return p, nil
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]model.Prediction, error) {
	query := `SELECT id, image_id, owner_id, result, model_version, created_at FROM predictions WHERE 1=1`
	var args []any

	if filter.OwnerID != "" {
		query += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Method != "" {
		query += ` AND method = ?`
		args = append(args, string(filter.Method))
	}
	if filter.Search != "" {
		query += ` AND search_text LIKE ?`
		args = append(args, "%"+foldSearchTerm(filter.Search)+"%")
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		preds = append(preds, *p)
	}
	return preds, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}

func (s *SQLiteStore) UpsertGroundTruth(ctx context.Context, gt model.GroundTruth) (*model.GroundTruth, error) {
	if gt.ID == "" {
		gt.ID = uuid.New().String()
	}
	if gt.CreatedAt.IsZero() {
		gt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ground_truth (id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (image_id) DO UPDATE SET
			brand = excluded.brand,
			product_family = excluded.product_family,
			model_number = excluded.model_number,
			serial_number = excluded.serial_number,
			verified_by = excluded.verified_by,
			notes = excluded.notes,
			verified = excluded.verified`,
		gt.ID, gt.ImageID, gt.OwnerID, gt.Brand, gt.ProductFamily, gt.ModelNumber, gt.SerialNumber,
		gt.VerifiedBy, gt.Notes, gt.Verified, gt.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert ground truth for image %s", gt.ImageID)
	}
	return &gt, nil
}

func (s *SQLiteStore) GetGroundTruth(ctx context.Context, imageID string) (*model.GroundTruth, error) {
	var gt model.GroundTruth
	err := s.db.QueryRowContext(ctx,
		`SELECT id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at
		 FROM ground_truth WHERE image_id = ?`, imageID,
	).Scan(&gt.ID, &gt.ImageID, &gt.OwnerID, &gt.Brand, &gt.ProductFamily, &gt.ModelNumber, &gt.SerialNumber,
		&gt.VerifiedBy, &gt.Notes, &gt.Verified, &gt.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get ground truth")
	}
	return &gt, nil
}

func (s *SQLiteStore) ListGroundTruth(ctx context.Context, ownerID string) ([]model.GroundTruth, error) {
	query := `SELECT id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at
		 FROM ground_truth`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ground truth")
	}
	defer rows.Close()

	var entries []model.GroundTruth
	for rows.Next() {
		var gt model.GroundTruth
		if err := rows.Scan(&gt.ID, &gt.ImageID, &gt.OwnerID, &gt.Brand, &gt.ProductFamily, &gt.ModelNumber, &gt.SerialNumber,
			&gt.VerifiedBy, &gt.Notes, &gt.Verified, &gt.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ground truth")
		}
		entries = append(entries, gt)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list ground truth iterate")
}

func (s *SQLiteStore) ImportGroundTruth(ctx context.Context, entries []model.GroundTruth) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for _, gt := range entries {
		if gt.ID == "" {
			gt.ID = uuid.New().String()
		}
		if gt.CreatedAt.IsZero() {
			gt.CreatedAt = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ground_truth (id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (image_id) DO UPDATE SET
				brand = excluded.brand,
				product_family = excluded.product_family,
				model_number = excluded.model_number,
				serial_number = excluded.serial_number,
				verified_by = excluded.verified_by,
				notes = excluded.notes,
				verified = excluded.verified`,
			gt.ID, gt.ImageID, gt.OwnerID, gt.Brand, gt.ProductFamily, gt.ModelNumber, gt.SerialNumber,
			gt.VerifiedBy, gt.Notes, gt.Verified, gt.CreatedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: import ground truth for image %s", gt.ImageID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return n, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPrediction(row scannable) (*model.Prediction, error) {
	var p model.Prediction
	var resultJSON string
	var modelVersion sql.NullString

	err := row.Scan(&p.ID, &p.ImageID, &p.OwnerID, &resultJSON, &modelVersion, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(resultJSON), &p.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal prediction result")
	}
	p.ModelVersion = modelVersion.String
	return &p, nil
}
