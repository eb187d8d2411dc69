package blob

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
)

// GCSStore implements Store on Google Cloud Storage. Bucket names are
// resolved from the Mode at call time.
type GCSStore struct {
	client  *storage.Client
	buckets map[Mode]string
}

// NewGCS creates a GCSStore using application-default credentials.
func NewGCS(ctx context.Context, productionBucket, ephemeralBucket string) (*GCSStore, error) {
	if productionBucket == "" {
		return nil, eris.New("blob: production bucket name is required")
	}
	if ephemeralBucket == "" {
		ephemeralBucket = productionBucket
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "blob: create GCS client")
	}

	return &GCSStore{
		client: client,
		buckets: map[Mode]string{
			Production: productionBucket,
			Ephemeral:  ephemeralBucket,
		},
	}, nil
}

func (s *GCSStore) bucketName(mode Mode) string {
	if name, ok := s.buckets[mode]; ok {
		return name
	}
	return s.buckets[Production]
}

func (s *GCSStore) Put(ctx context.Context, mode Mode, path string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucketName(mode)).Object(path).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return eris.Wrapf(err, "blob: write object %s", path)
	}
	if err := w.Close(); err != nil {
		return eris.Wrapf(err, "blob: finalize object %s", path)
	}
	return nil
}

func (s *GCSStore) Get(ctx context.Context, mode Mode, path string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucketName(mode)).Object(path).NewReader(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open object %s", path)
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: read object %s", path)
	}
	return data, nil
}

func (s *GCSStore) Delete(ctx context.Context, mode Mode, path string) error {
	if err := s.client.Bucket(s.bucketName(mode)).Object(path).Delete(ctx); err != nil {
		return eris.Wrapf(err, "blob: delete object %s", path)
	}
	return nil
}

func (s *GCSStore) SignedURL(mode Mode, path string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucketName(mode)).SignedURL(path, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", eris.Wrapf(err, "blob: sign URL for %s", path)
	}
	return url, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
