package domain

import (
	"io"
	"time"
)

// FileDescriptor is the metadata record for one uploaded file. It is created
// once at upload completion and never mutated afterwards; expiry or
// reconciliation removes it entirely.
type FileDescriptor struct {
	// StorageKey is the physical blob name: the file id plus the original
	// extension. The id is the key minus the extension.
	StorageKey string `json:"storageKey"`
	// OriginalName is the client-supplied filename. It is untrusted and used
	// only as the suggested download filename, never as a filesystem path.
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the descriptor's retention window has passed.
func (d FileDescriptor) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// Upload is an incoming payload with its client-declared attributes.
type Upload struct {
	OriginalName string
	MimeType     string
	// SizeBytes is the declared payload length; the actual streamed length is
	// still bounded independently.
	SizeBytes int64
	Body      io.Reader
}

// File couples a resolved descriptor with an open handle on its blob.
// Size is the blob's current physical size, which range requests are
// resolved against.
type File struct {
	ID   string
	Meta FileDescriptor
	Size int64
	Body io.ReadSeekCloser
}
