package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/atelierlabs/nameplate-cli/internal/db"
	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-path store operations.
var preparedStatements = map[string]string{
	"insert_image":      `INSERT INTO images (id, owner_id, original_filename, storage_path, mime_type, size_bytes, uploaded_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_image":         `SELECT id, owner_id, original_filename, storage_path, mime_type, size_bytes, uploaded_at FROM images WHERE id = $1`,
	"insert_prediction": `INSERT INTO predictions (id, image_id, owner_id, result, method, model_version, search_text, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_prediction":    `SELECT id, image_id, owner_id, result, model_version, created_at FROM predictions WHERE image_id = $1 ORDER BY created_at DESC LIMIT 1`,
	"get_ground_truth":  `SELECT id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at FROM ground_truth WHERE image_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS images (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	owner_id          TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	storage_path      TEXT NOT NULL,
	mime_type         TEXT NOT NULL,
	size_bytes        BIGINT NOT NULL,
	uploaded_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS predictions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	image_id      TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	owner_id      TEXT NOT NULL,
	result        JSONB NOT NULL,
	method        TEXT NOT NULL,
	model_version TEXT,
	search_text   TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ground_truth (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	image_id       TEXT NOT NULL UNIQUE REFERENCES images(id) ON DELETE CASCADE,
	owner_id       TEXT NOT NULL,
	brand          TEXT,
	product_family TEXT,
	model_number   TEXT,
	serial_number  TEXT,
	verified_by    TEXT,
	notes          TEXT,
	verified       BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_images_owner ON images(owner_id);
CREATE INDEX IF NOT EXISTS idx_predictions_image ON predictions(image_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_owner ON predictions(owner_id);
CREATE INDEX IF NOT EXISTS idx_predictions_result ON predictions USING GIN (result);
CREATE INDEX IF NOT EXISTS idx_ground_truth_image ON ground_truth(image_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateImage(ctx context.Context, img model.Image) (*model.Image, error) {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO images (id, owner_id, original_filename, storage_path, mime_type, size_bytes, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		img.ID, img.OwnerID, img.OriginalFilename, img.StoragePath, img.MIMEType, img.SizeBytes, img.UploadedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert image")
	}
	return &img, nil
}

func (s *PostgresStore) GetImage(ctx context.Context, id string) (*model.Image, error) {
	var img model.Image
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, original_filename, storage_path, mime_type, size_bytes, uploaded_at
		 FROM images WHERE id = $1`, id,
	).Scan(&img.ID, &img.OwnerID, &img.OriginalFilename, &img.StoragePath, &img.MIMEType, &img.SizeBytes, &img.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("image not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get image")
	}
	return &img, nil
}

func (s *PostgresStore) DeleteImage(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete image %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("image not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) InsertPrediction(ctx context.Context, p model.Prediction) (*model.Prediction, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	resultJSON, err := json.Marshal(p.Result)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (id, image_id, owner_id, result, method, model_version, search_text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.ImageID, p.OwnerID, resultJSON, string(p.Result.Method), p.ModelVersion,
		predictionSearchText(p.Result), p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert prediction for image %s", p.ImageID)
	}
	return &p, nil
}

func (s *PostgresStore) GetPredictionByImage(ctx context.Context, imageID string) (*model.Prediction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, image_id, owner_id, result, model_version, created_at
		 FROM predictions WHERE image_id = $1
		 ORDER BY created_at DESC LIMIT 1`, imageID,
	)
	p, err := scanPredictionPG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get prediction")
	}
	return p, nil
}

func (s *PostgresStore) ListPredictions(ctx context.Context, filter PredictionFilter) ([]model.Prediction, error) {
	query := `SELECT id, image_id, owner_id, result, model_version, created_at FROM predictions WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.OwnerID != "" {
		query += ` AND owner_id = ` + arg(filter.OwnerID)
	}
	if filter.Method != "" {
		query += ` AND method = ` + arg(string(filter.Method))
	}
	if filter.Search != "" {
		query += ` AND search_text ILIKE ` + arg("%"+foldSearchTerm(filter.Search)+"%")
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		p, err := scanPredictionPG(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		preds = append(preds, *p)
	}
	return preds, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}

func (s *PostgresStore) UpsertGroundTruth(ctx context.Context, gt model.GroundTruth) (*model.GroundTruth, error) {
	if gt.ID == "" {
		gt.ID = uuid.New().String()
	}
	if gt.CreatedAt.IsZero() {
		gt.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ground_truth (id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (image_id) DO UPDATE SET
			brand = EXCLUDED.brand,
			product_family = EXCLUDED.product_family,
			model_number = EXCLUDED.model_number,
			serial_number = EXCLUDED.serial_number,
			verified_by = EXCLUDED.verified_by,
			notes = EXCLUDED.notes,
			verified = EXCLUDED.verified`,
		gt.ID, gt.ImageID, gt.OwnerID, gt.Brand, gt.ProductFamily, gt.ModelNumber, gt.SerialNumber,
		gt.VerifiedBy, gt.Notes, gt.Verified, gt.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert ground truth for image %s", gt.ImageID)
	}
	return &gt, nil
}

func (s *PostgresStore) GetGroundTruth(ctx context.Context, imageID string) (*model.GroundTruth, error) {
	var gt model.GroundTruth
	err := s.pool.QueryRow(ctx,
		`SELECT id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at
		 FROM ground_truth WHERE image_id = $1`, imageID,
	).Scan(&gt.ID, &gt.ImageID, &gt.OwnerID, &gt.Brand, &gt.ProductFamily, &gt.ModelNumber, &gt.SerialNumber,
		&gt.VerifiedBy, &gt.Notes, &gt.Verified, &gt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get ground truth")
	}
	return &gt, nil
}

func (s *PostgresStore) ListGroundTruth(ctx context.Context, ownerID string) ([]model.GroundTruth, error) {
	query := `SELECT id, image_id, owner_id, brand, product_family, model_number, serial_number, verified_by, notes, verified, created_at
		 FROM ground_truth`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ground truth")
	}
	defer rows.Close()

	var entries []model.GroundTruth
	for rows.Next() {
		var gt model.GroundTruth
		if err := rows.Scan(&gt.ID, &gt.ImageID, &gt.OwnerID, &gt.Brand, &gt.ProductFamily, &gt.ModelNumber, &gt.SerialNumber,
			&gt.VerifiedBy, &gt.Notes, &gt.Verified, &gt.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ground truth")
		}
		entries = append(entries, gt)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list ground truth iterate")
}

// ImportGroundTruth bulk-upserts via a temp table and COPY, which beats
// row-at-a-time inserts for evaluation datasets of any real size.
func (s *PostgresStore) ImportGroundTruth(ctx context.Context, entries []model.GroundTruth) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(entries))
	for _, gt := range entries {
		id := gt.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := gt.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows = append(rows, []any{
			id, gt.ImageID, gt.OwnerID, gt.Brand, gt.ProductFamily, gt.ModelNumber, gt.SerialNumber,
			gt.VerifiedBy, gt.Notes, gt.Verified, createdAt,
		})
	}

	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "ground_truth",
		Columns:      []string{"id", "image_id", "owner_id", "brand", "product_family", "model_number", "serial_number", "verified_by", "notes", "verified", "created_at"},
		ConflictKeys: []string{"image_id"},
		UpdateCols:   []string{"brand", "product_family", "model_number", "serial_number", "verified_by", "notes", "verified"},
	}, rows)
}

// helpers

type pgScannable interface {
	Scan(dest ...any) error
}

func scanPredictionPG(row pgScannable) (*model.Prediction, error) {
	var p model.Prediction
	var resultJSON []byte
	var modelVersion *string

	err := row.Scan(&p.ID, &p.ImageID, &p.OwnerID, &resultJSON, &modelVersion, &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(resultJSON, &p.Result); err != nil {
		return nil, eris.Wrap(err, "unmarshal prediction result")
	}
	if modelVersion != nil {
		p.ModelVersion = *modelVersion
	}
	return &p, nil
}
