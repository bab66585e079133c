package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/afero"

	"github.com/mkovtun/filedrop/applications/server/domain"
	"github.com/mkovtun/filedrop/applications/server/interfaces"
)

// Store keeps the id -> descriptor mapping in memory and rewrites the full
// JSON snapshot to disk on every mutation. The on-disk file is the sole
// source of truth across restarts.
type Store struct {
	fs      afero.Fs
	path    string
	logger  log.Logger
	mutex   sync.RWMutex
	records map[string]domain.FileDescriptor
}

// Open loads the snapshot at path. A missing or unparsable file yields an
// empty mapping, never an error; the service must boot regardless.
func Open(fsys afero.Fs, path string, logger log.Logger) (*Store, error) {
	s := &Store{
		fs:      fsys,
		path:    path,
		logger:  logger,
		records: map[string]domain.FileDescriptor{},
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("can't read metadata file: %w", err)
		}
		return s, nil
	}

	if err = json.Unmarshal(data, &s.records); err != nil {
		level.Error(logger).Log("msg", "metadata file unparsable, starting empty",
			"path", path,
			"err", err,
		)
		s.records = map[string]domain.FileDescriptor{}
	}

	return s, nil
}

func (s *Store) Get(ctx context.Context, id string) (domain.FileDescriptor, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	desc, ok := s.records[id]

	return desc, ok
}

func (s *Store) Put(ctx context.Context, id string, desc domain.FileDescriptor) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.records[id] = desc

	if err := s.persist(); err != nil {
		delete(s.records, id)
		return fmt.Errorf("can't persist metadata: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.records[id]; !ok {
		return nil
	}

	delete(s.records, id)

	if err := s.persist(); err != nil {
		return fmt.Errorf("can't persist metadata: %w", err)
	}

	return nil
}

func (s *Store) DeleteBatch(ctx context.Context, ids []string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			removed++
		}
	}

	if removed == 0 {
		return nil
	}

	if err := s.persist(); err != nil {
		return fmt.Errorf("can't persist metadata: %w", err)
	}

	return nil
}

func (s *Store) Snapshot(ctx context.Context) map[string]domain.FileDescriptor {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snapshot := make(map[string]domain.FileDescriptor, len(s.records))
	for id, desc := range s.records {
		snapshot[id] = desc
	}

	return snapshot
}

// persist writes the snapshot to a sibling temp file and renames it over the
// target, so a crash mid-write leaves the prior version intact.
// Callers must hold the write lock.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("can't marshal records: %w", err)
	}

	tmp := s.path + ".tmp"
	if err = afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("can't write temp file: %w", err)
	}

	if err = s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("can't rename temp file: %w", err)
	}

	return nil
}

var _ interfaces.MetaStore = (*Store)(nil)
