package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mkovtun/filedrop/applications/server"
	"github.com/mkovtun/filedrop/applications/server/domain"
	"github.com/mkovtun/filedrop/applications/server/interfaces"
)

const defaultMimeType = "application/octet-stream"

type service struct {
	meta           interfaces.MetaStore
	blobs          interfaces.BlobStore
	ttl            time.Duration
	maxUploadBytes int64
	logger         log.Logger
	now            func() time.Time
}

func NewService(meta interfaces.MetaStore, blobs interfaces.BlobStore, ttl time.Duration, maxUploadBytes int64, logger log.Logger) server.FileService {
	return &service{
		meta:           meta,
		blobs:          blobs,
		ttl:            ttl,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *service) Upload(ctx context.Context, up domain.Upload) (string, domain.FileDescriptor, error) {
	if up.Body == nil {
		return "", domain.FileDescriptor{}, domain.ErrNoPayload
	}

	if s.maxUploadBytes > 0 && up.SizeBytes > s.maxUploadBytes {
		return "", domain.FileDescriptor{}, domain.ErrTooLarge
	}

	// The declared size is untrusted, so the stream itself is bounded too.
	body := up.Body
	if s.maxUploadBytes > 0 {
		body = io.LimitReader(body, s.maxUploadBytes+1)
	}

	key, size, err := s.blobs.Put(ctx, body, filepath.Ext(up.OriginalName))
	if err != nil {
		return "", domain.FileDescriptor{}, fmt.Errorf("can't store blob: %w", err)
	}

	if s.maxUploadBytes > 0 && size > s.maxUploadBytes {
		s.deleteBlob(ctx, key)
		return "", domain.FileDescriptor{}, domain.ErrTooLarge
	}

	id := strings.TrimSuffix(key, filepath.Ext(key))
	now := s.now()

	desc := domain.FileDescriptor{
		StorageKey:   key,
		OriginalName: up.OriginalName,
		MimeType:     mimeOrDefault(up.MimeType),
		SizeBytes:    size,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}

	if err = s.meta.Put(ctx, id, desc); err != nil {
		// Don't leave an orphan blob behind a failed metadata write.
		s.deleteBlob(ctx, key)
		return "", domain.FileDescriptor{}, fmt.Errorf("can't store descriptor: %w", err)
	}

	return id, desc, nil
}

func (s *service) Fetch(ctx context.Context, id string) (domain.File, error) {
	desc, ok := s.meta.Get(ctx, id)
	if !ok {
		return domain.File{}, domain.ErrNotFound
	}

	body, size, err := s.blobs.Open(ctx, desc.StorageKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The blob vanished underneath us; drop the dangling descriptor.
			if delErr := s.meta.Delete(ctx, id); delErr != nil {
				level.Error(s.logger).Log("msg", "can't reconcile descriptor",
					"id", id,
					"err", delErr,
				)
			}
			return domain.File{}, domain.ErrNotFound
		}
		return domain.File{}, fmt.Errorf("can't open blob: %w", err)
	}

	if desc.Expired(s.now()) {
		body.Close()
		s.deleteBlob(ctx, desc.StorageKey)
		if delErr := s.meta.Delete(ctx, id); delErr != nil {
			level.Error(s.logger).Log("msg", "can't delete expired descriptor",
				"id", id,
				"err", delErr,
			)
		}
		return domain.File{}, domain.ErrExpired
	}

	return domain.File{
		ID:   id,
		Meta: desc,
		Size: size,
		Body: body,
	}, nil
}

func (s *service) Remove(ctx context.Context, id string) error {
	desc, ok := s.meta.Get(ctx, id)
	if !ok {
		return nil
	}

	s.deleteBlob(ctx, desc.StorageKey)

	if err := s.meta.Delete(ctx, id); err != nil {
		return fmt.Errorf("can't delete descriptor: %w", err)
	}

	return nil
}

// deleteBlob is best-effort: a leaked blob is better than a dangling
// descriptor, so failures are logged and swallowed.
func (s *service) deleteBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		level.Error(s.logger).Log("msg", "can't delete blob",
			"key", key,
			"err", err,
		)
	}
}

func mimeOrDefault(mimeType string) string {
	if mimeType == "" {
		return defaultMimeType
	}

	return mimeType
}
