package server

import (
	"context"

	"github.com/mkovtun/filedrop/applications/server/domain"
)

type FileService interface {
	// Upload stores the payload and returns the assigned id with its
	// descriptor. The blob is written before the descriptor so a failed
	// write never leaves a dangling descriptor behind.
	Upload(ctx context.Context, up domain.Upload) (string, domain.FileDescriptor, error)
	// Fetch resolves an id to an open file, reconciling a missing blob and
	// cleaning up an expired entry as side effects. Callers own Body.
	Fetch(ctx context.Context, id string) (domain.File, error)
	// Remove deletes both the blob and the descriptor; removing an unknown
	// id is a no-op.
	Remove(ctx context.Context, id string) error
}
