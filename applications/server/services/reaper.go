package services

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mkovtun/filedrop/applications/server/interfaces"
)

// Reaper periodically sweeps the metadata snapshot, reclaiming expired
// entries and descriptors whose blob has gone missing. It is the only path
// that ever reclaims expired files nobody accesses.
type Reaper struct {
	meta     interfaces.MetaStore
	blobs    interfaces.BlobStore
	interval time.Duration
	logger   log.Logger
	now      func() time.Time
}

func NewReaper(meta interfaces.MetaStore, blobs interfaces.BlobStore, interval time.Duration, logger log.Logger) *Reaper {
	return &Reaper{
		meta:     meta,
		blobs:    blobs,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled. A sweep in progress is
// never interrupted mid-record; the next sweep repeats the same idempotent
// checks, so a partial sweep at shutdown loses nothing.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep walks the full snapshot once, deletes expired blobs and orphaned
// descriptors, and persists metadata at most once when anything changed.
func (r *Reaper) Sweep(ctx context.Context) {
	now := r.now()

	var (
		removed   []string
		expired   int
		orphaned  int
		reclaimed int64
	)

	for id, desc := range r.meta.Snapshot(ctx) {
		if desc.Expired(now) {
			if err := r.blobs.Delete(ctx, desc.StorageKey); err != nil {
				// Best-effort: the descriptor goes regardless.
				level.Error(r.logger).Log("msg", "can't delete expired blob",
					"id", id,
					"key", desc.StorageKey,
					"err", err,
				)
			}
			removed = append(removed, id)
			expired++
			reclaimed += desc.SizeBytes
			continue
		}

		ok, err := r.blobs.Exists(ctx, desc.StorageKey)
		if err != nil {
			level.Error(r.logger).Log("msg", "can't check blob",
				"id", id,
				"key", desc.StorageKey,
				"err", err,
			)
			continue
		}
		if !ok {
			removed = append(removed, id)
			orphaned++
		}
	}

	if len(removed) == 0 {
		return
	}

	if err := r.meta.DeleteBatch(ctx, removed); err != nil {
		level.Error(r.logger).Log("msg", "can't persist sweep",
			"err", err,
		)
		return
	}

	level.Info(r.logger).Log("msg", "sweep complete",
		"expired", expired,
		"orphaned", orphaned,
		"reclaimed", humanize.Bytes(uint64(reclaimed)),
	)
}
