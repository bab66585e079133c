package diskblob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/mkovtun/filedrop/applications/server/domain"
	"github.com/mkovtun/filedrop/applications/server/interfaces"
)

// keyBytes of entropy per storage key, rendered as hex. 6 bytes = 48 bits,
// enough that ids are unguessable at this scale.
const keyBytes = 6

const maxExtLen = 16

// Storage keeps blobs in a single flat directory, one file per key.
type Storage struct {
	fs     afero.Fs
	dir    string
	logger log.Logger
}

func New(fsys afero.Fs, dir string, logger log.Logger) (*Storage, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("can't create blob directory: %w", err)
	}

	return &Storage{
		fs:     fsys,
		dir:    dir,
		logger: logger,
	}, nil
}

func (s *Storage) Put(ctx context.Context, body io.Reader, ext string) (string, int64, error) {
	key, f, err := s.create(sanitizeExt(ext))
	if err != nil {
		return "", 0, err
	}

	size, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		if rmErr := s.fs.Remove(filepath.Join(s.dir, key)); rmErr != nil && !os.IsNotExist(rmErr) {
			level.Error(s.logger).Log("msg", "can't remove partial blob",
				"key", key,
				"err", rmErr,
			)
		}
		return "", 0, fmt.Errorf("can't write blob: %w", err)
	}

	if err = f.Close(); err != nil {
		return "", 0, fmt.Errorf("can't close blob: %w", err)
	}

	level.Info(s.logger).Log("msg", "blob stored",
		"key", key,
		"size", humanize.Bytes(uint64(size)),
	)

	return key, size, nil
}

// create opens a fresh blob file under a new random key, retrying on the
// (vanishingly unlikely) collision.
func (s *Storage) create(ext string) (string, afero.File, error) {
	for attempt := 0; attempt < 5; attempt++ {
		token := make([]byte, keyBytes)
		if _, err := io.ReadFull(rand.Reader, token); err != nil {
			return "", nil, fmt.Errorf("can't read random bytes: %w", err)
		}

		key := hex.EncodeToString(token) + ext
		f, err := s.fs.OpenFile(filepath.Join(s.dir, key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", nil, fmt.Errorf("can't create blob file: %w", err)
		}

		return key, f, nil
	}

	return "", nil, fmt.Errorf("can't generate unique storage key")
}

func (s *Storage) Open(ctx context.Context, storageKey string) (io.ReadSeekCloser, int64, error) {
	path, err := s.keyPath(storageKey)
	if err != nil {
		return nil, 0, err
	}

	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("blob %s: %w", storageKey, domain.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("can't open blob: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("can't stat blob: %w", err)
	}

	return f, info.Size(), nil
}

func (s *Storage) Delete(ctx context.Context, storageKey string) error {
	path, err := s.keyPath(storageKey)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("can't delete blob: %w", err)
	}

	return nil
}

func (s *Storage) Exists(ctx context.Context, storageKey string) (bool, error) {
	path, err := s.keyPath(storageKey)
	if err != nil {
		return false, err
	}

	return afero.Exists(s.fs, path)
}

// keyPath rejects keys that would escape the blob directory. Keys are
// generated here, but the guard keeps a corrupted metadata file from
// turning into a path traversal.
func (s *Storage) keyPath(storageKey string) (string, error) {
	if storageKey == "" || filepath.Base(storageKey) != storageKey {
		return "", fmt.Errorf("invalid storage key %q", storageKey)
	}

	return filepath.Join(s.dir, storageKey), nil
}

// sanitizeExt keeps the extension only as a content-type hint: a leading dot
// followed by a short alphanumeric tail, anything else is dropped.
func sanitizeExt(ext string) string {
	if ext == "" || !strings.HasPrefix(ext, ".") || len(ext) > maxExtLen {
		return ""
	}

	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return ""
		}
	}

	if ext == "." {
		return ""
	}

	return ext
}

var _ interfaces.BlobStore = (*Storage)(nil)
