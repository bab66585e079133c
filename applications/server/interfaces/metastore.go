package interfaces

import (
	"context"

	"github.com/mkovtun/filedrop/applications/server/domain"
)

// MetaStore is the durable id -> descriptor mapping. Implementations must
// persist every mutation before returning and must treat deletion of a
// missing id as success so that racing deleters never fail.
type MetaStore interface {
	Get(ctx context.Context, id string) (domain.FileDescriptor, bool)
	Put(ctx context.Context, id string, desc domain.FileDescriptor) error
	Delete(ctx context.Context, id string) error
	// DeleteBatch removes every listed id and persists at most once,
	// regardless of how many ids were actually present.
	DeleteBatch(ctx context.Context, ids []string) error
	// Snapshot returns a copy of the full mapping.
	Snapshot(ctx context.Context) map[string]domain.FileDescriptor
}
