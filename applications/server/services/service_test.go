package services

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkovtun/filedrop/applications/server/adapters/diskblob"
	"github.com/mkovtun/filedrop/applications/server/adapters/jsonfile"
	"github.com/mkovtun/filedrop/applications/server/domain"
)

const (
	testTTL      = 24 * time.Hour
	testMaxBytes = 1 << 20
)

type testEnv struct {
	fs      afero.Fs
	meta    *jsonfile.Store
	blobs   *diskblob.Storage
	service *service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	meta, err := jsonfile.Open(fs, "metadata.json", log.NewNopLogger())
	require.NoError(t, err)
	blobs, err := diskblob.New(fs, "uploads", log.NewNopLogger())
	require.NoError(t, err)

	svc := NewService(meta, blobs, testTTL, testMaxBytes, log.NewNopLogger()).(*service)

	return &testEnv{
		fs:      fs,
		meta:    meta,
		blobs:   blobs,
		service: svc,
	}
}

func (e *testEnv) upload(t *testing.T, name, mimeType, content string) string {
	t.Helper()

	id, _, err := e.service.Upload(context.Background(), domain.Upload{
		OriginalName: name,
		MimeType:     mimeType,
		SizeBytes:    int64(len(content)),
		Body:         strings.NewReader(content),
	})
	require.NoError(t, err)

	return id
}

func TestUploadFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.upload(t, "notes.txt", "text/plain", "round trip payload")

	file, err := env.service.Fetch(ctx, id)
	require.NoError(t, err)
	defer file.Body.Close()

	got, err := io.ReadAll(file.Body)
	require.NoError(t, err)
	assert.Equal(t, "round trip payload", string(got))
	assert.Equal(t, "text/plain", file.Meta.MimeType)
	assert.Equal(t, "notes.txt", file.Meta.OriginalName)
	assert.Equal(t, int64(len("round trip payload")), file.Size)
	assert.Equal(t, id+".txt", file.Meta.StorageKey)
}

func TestUploadSetsExpiry(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env.service.now = func() time.Time { return now }

	id := env.upload(t, "a.bin", "application/octet-stream", "x")

	desc, ok := env.meta.Get(context.Background(), id)
	require.True(t, ok)
	assert.True(t, desc.CreatedAt.Equal(now))
	assert.True(t, desc.ExpiresAt.Equal(now.Add(testTTL)))
}

func TestUploadNoBody(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.Upload(context.Background(), domain.Upload{OriginalName: "x"})

	assert.ErrorIs(t, err, domain.ErrNoPayload)
	assert.Empty(t, env.meta.Snapshot(context.Background()))
}

func TestUploadDeclaredTooLarge(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.Upload(context.Background(), domain.Upload{
		OriginalName: "big.bin",
		SizeBytes:    testMaxBytes + 1,
		Body:         strings.NewReader("tiny"),
	})

	assert.ErrorIs(t, err, domain.ErrTooLarge)
	assert.Empty(t, env.meta.Snapshot(context.Background()))
}

func TestUploadStreamTooLarge(t *testing.T) {
	env := newTestEnv(t)

	// Declared size lies; the stream itself is over the limit.
	_, _, err := env.service.Upload(context.Background(), domain.Upload{
		OriginalName: "liar.bin",
		SizeBytes:    10,
		Body:         strings.NewReader(strings.Repeat("a", testMaxBytes+10)),
	})

	assert.ErrorIs(t, err, domain.ErrTooLarge)
	assert.Empty(t, env.meta.Snapshot(context.Background()))

	infos, err := afero.ReadDir(env.fs, "uploads")
	require.NoError(t, err)
	assert.Empty(t, infos, "oversized blob must not linger")
}

func TestFetchUnknownID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Fetch(context.Background(), "ffffffffffff")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetchExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.upload(t, "old.txt", "text/plain", "stale")

	env.service.now = func() time.Time { return time.Now().Add(testTTL + time.Minute) }

	_, err := env.service.Fetch(ctx, id)
	assert.ErrorIs(t, err, domain.ErrExpired)

	// Cleanup already happened: same id is now unknown, blob is gone.
	_, err = env.service.Fetch(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	desc, ok := env.meta.Get(ctx, id)
	assert.False(t, ok, "descriptor should be removed, got %+v", desc)
}

func TestFetchReconcilesMissingBlob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.upload(t, "gone.txt", "text/plain", "vanishing")

	desc, ok := env.meta.Get(ctx, id)
	require.True(t, ok)
	require.NoError(t, env.fs.Remove("uploads/"+desc.StorageKey))

	_, err := env.service.Fetch(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, ok = env.meta.Get(ctx, id)
	assert.False(t, ok, "dangling descriptor should be reconciled away")
}

func TestRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.upload(t, "twice.txt", "text/plain", "payload")

	assert.NoError(t, env.service.Remove(ctx, id))
	assert.NoError(t, env.service.Remove(ctx, id))

	_, err := env.service.Fetch(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUploadDefaultsMimeType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.upload(t, "unknown", "", "bytes")

	desc, ok := env.meta.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, "application/octet-stream", desc.MimeType)
}
