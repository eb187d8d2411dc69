// Package blob abstracts object storage for nameplate images. The pipeline
// only needs signed read URLs; upload and deletion serve the surrounding
// commands.
package blob

import (
	"context"
	"time"
)

// Mode selects the storage namespace. Test traffic goes to an ephemeral
// bucket so evaluation runs never mix with production uploads. The mode is
// an explicit parameter rather than something inferred from the caller's
// identity.
type Mode string

const (
	Production Mode = "production"
	Ephemeral  Mode = "ephemeral"
)

// Store is the object-storage interface consumed by the pipeline and the
// upload/delete commands.
type Store interface {
	// Put writes an object with the given content type.
	Put(ctx context.Context, mode Mode, path string, data []byte, contentType string) error

	// Get reads an object's bytes.
	Get(ctx context.Context, mode Mode, path string) ([]byte, error)

	// Delete removes an object.
	Delete(ctx context.Context, mode Mode, path string) error

	// SignedURL returns a time-limited URL that grants read access to the
	// object for external services (vision model, OCR endpoint).
	SignedURL(mode Mode, path string, ttl time.Duration) (string, error)

	// Close releases the underlying client.
	Close() error
}
