package interfaces

import (
	"context"
	"io"
)

// BlobStore stores uploaded payloads under generated keys.
type BlobStore interface {
	// Put streams body into a new blob and returns its storage key: a
	// crypto-random hex token plus the sanitized ext.
	Put(ctx context.Context, body io.Reader, ext string) (storageKey string, size int64, err error)
	// Open returns a seekable handle on the blob and its current size.
	// A missing key yields domain.ErrNotFound.
	Open(ctx context.Context, storageKey string) (io.ReadSeekCloser, int64, error)
	// Delete is idempotent; removing a missing key is not an error.
	Delete(ctx context.Context, storageKey string) error
	Exists(ctx context.Context, storageKey string) (bool, error)
}
