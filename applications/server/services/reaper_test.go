package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkovtun/filedrop/applications/server/interfaces"
)

func newTestReaper(t *testing.T, env *testEnv) *Reaper {
	t.Helper()

	return NewReaper(env.meta, env.blobs, time.Minute, log.NewNopLogger())
}

func TestSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	expiredID := env.upload(t, "expired.txt", "text/plain", "old")
	freshID := env.upload(t, "fresh.txt", "text/plain", "new")

	reaper := newTestReaper(t, env)
	reaper.now = func() time.Time { return time.Now().Add(testTTL + time.Minute) }

	// Make only one of the two expired.
	desc, ok := env.meta.Get(ctx, freshID)
	require.True(t, ok)
	desc.ExpiresAt = time.Now().Add(2 * testTTL)
	require.NoError(t, env.meta.Put(ctx, freshID, desc))

	expiredDesc, ok := env.meta.Get(ctx, expiredID)
	require.True(t, ok)

	reaper.Sweep(ctx)

	_, ok = env.meta.Get(ctx, expiredID)
	assert.False(t, ok)
	_, ok = env.meta.Get(ctx, freshID)
	assert.True(t, ok)

	exists, err := env.blobs.Exists(ctx, expiredDesc.StorageKey)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSweepRemovesOrphanedDescriptors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.upload(t, "orphan.txt", "text/plain", "body")

	desc, ok := env.meta.Get(ctx, id)
	require.True(t, ok)
	require.NoError(t, env.fs.Remove("uploads/"+desc.StorageKey))

	reaper := newTestReaper(t, env)
	reaper.Sweep(ctx)

	_, ok = env.meta.Get(ctx, id)
	assert.False(t, ok, "descriptor without blob should be swept")
}

func TestSweepSurvivesExpiredWithMissingBlob(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	id := env.upload(t, "both.txt", "text/plain", "body")

	desc, ok := env.meta.Get(ctx, id)
	require.True(t, ok)
	require.NoError(t, env.fs.Remove("uploads/"+desc.StorageKey))

	reaper := newTestReaper(t, env)
	reaper.now = func() time.Time { return time.Now().Add(testTTL + time.Minute) }

	reaper.Sweep(ctx)

	_, ok = env.meta.Get(ctx, id)
	assert.False(t, ok)
}

// countingMetaStore wraps a MetaStore to observe persistence calls.
type countingMetaStore struct {
	interfaces.MetaStore
	deleteBatchCalls int
}

func (c *countingMetaStore) DeleteBatch(ctx context.Context, ids []string) error {
	c.deleteBatchCalls++
	return c.MetaStore.DeleteBatch(ctx, ids)
}

func TestSweepPersistsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.upload(t, "fresh.txt", "text/plain", "still good")

	counting := &countingMetaStore{MetaStore: env.meta}
	reaper := NewReaper(counting, env.blobs, time.Minute, log.NewNopLogger())

	reaper.Sweep(ctx)
	assert.Equal(t, 0, counting.deleteBatchCalls, "clean sweep must not rewrite metadata")

	reaper.now = func() time.Time { return time.Now().Add(testTTL + time.Minute) }
	reaper.Sweep(ctx)
	assert.Equal(t, 1, counting.deleteBatchCalls)
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	reaper := NewReaper(env.meta, env.blobs, 10*time.Millisecond, log.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- reaper.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
