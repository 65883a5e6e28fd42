package filelock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExclusiveLocksSerialize(t *testing.T) {
	m := NewManager(nil, WithTimeout(2*time.Second))
	path := writeTestFile(t, "package x\n")
	ctx := context.Background()

	first, err := m.Acquire(ctx, path, "holder-1", Exclusive, false)
	require.NoError(t, err)

	secondAcquired := make(chan time.Time, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h, err := m.Acquire(ctx, path, "holder-2", Exclusive, false)
		require.NoError(t, err)
		secondAcquired <- time.Now()
		h.Release()
	}()

	// The second caller must not succeed while the first holds the lock.
	select {
	case <-secondAcquired:
		t.Fatal("second exclusive acquisition succeeded while first was held")
	case <-time.After(100 * time.Millisecond):
	}

	releasedAt := time.Now()
	first.Release()
	wg.Wait()

	acquiredAt := <-secondAcquired
	assert.False(t, acquiredAt.Before(releasedAt))
}

func TestSharedLocksCoexist(t *testing.T) {
	m := NewManager(nil)
	path := writeTestFile(t, "package x\n")
	ctx := context.Background()

	a, err := m.Acquire(ctx, path, "reader-1", Shared, false)
	require.NoError(t, err)
	b, err := m.Acquire(ctx, path, "reader-2", Shared, false)
	require.NoError(t, err)

	a.Release()
	b.Release()
}

func TestSharedBlocksExclusive(t *testing.T) {
	m := NewManager(nil, WithTimeout(150*time.Millisecond))
	path := writeTestFile(t, "package x\n")
	ctx := context.Background()

	reader, err := m.Acquire(ctx, path, "reader", Shared, false)
	require.NoError(t, err)
	defer reader.Release()

	_, err = m.Acquire(ctx, path, "writer", Exclusive, false)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestExclusiveBlocksShared(t *testing.T) {
	m := NewManager(nil, WithTimeout(150*time.Millisecond))
	path := writeTestFile(t, "package x\n")
	ctx := context.Background()

	writer, err := m.Acquire(ctx, path, "writer", Exclusive, false)
	require.NoError(t, err)
	defer writer.Release()

	_, err = m.Acquire(ctx, path, "reader", Shared, false)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestAcquireTimesOut(t *testing.T) {
	m := NewManager(nil, WithTimeout(100*time.Millisecond))
	path := writeTestFile(t, "package x\n")
	ctx := context.Background()

	h, err := m.Acquire(ctx, path, "holder-1", Exclusive, false)
	require.NoError(t, err)
	defer h.Release()

	start := time.Now()
	_, err = m.Acquire(ctx, path, "holder-2", Exclusive, false)
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	m := NewManager(nil, WithTimeout(5*time.Second))
	path := writeTestFile(t, "package x\n")

	h, err := m.Acquire(context.Background(), path, "holder-1", Exclusive, false)
	require.NoError(t, err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = m.Acquire(ctx, path, "holder-2", Exclusive, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackupCapturedBeforeProceeding(t *testing.T) {
	m := NewManager(nil)
	original := "package x\n\nfunc A() {}\n"
	path := writeTestFile(t, original)

	h, err := m.Acquire(context.Background(), path, "writer", Exclusive, true)
	require.NoError(t, err)
	defer h.Release()

	// The snapshot exists and is byte-identical by the time Acquire returns.
	require.NotEmpty(t, h.BackupPath())
	data, err := os.ReadFile(h.BackupPath())
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
	assert.NotEmpty(t, h.BackupHash())
}

func TestBackupRequiresExclusive(t *testing.T) {
	m := NewManager(nil)
	path := writeTestFile(t, "package x\n")

	_, err := m.Acquire(context.Background(), path, "reader", Shared, true)
	assert.Error(t, err)
}

func TestBackupFailureReleasesLock(t *testing.T) {
	m := NewManager(nil, WithTimeout(200*time.Millisecond))
	missing := filepath.Join(t.TempDir(), "absent.go")

	_, err := m.Acquire(context.Background(), missing, "writer", Exclusive, true)
	require.Error(t, err)

	// The slot must have been returned; a fresh acquisition succeeds.
	h, err := m.Acquire(context.Background(), missing, "writer", Exclusive, false)
	require.NoError(t, err)
	h.Release()
}

func TestRestoreRewritesOriginal(t *testing.T) {
	m := NewManager(nil)
	original := "package x\n\nfunc Keep() {}\n"
	path := writeTestFile(t, original)

	h, err := m.Acquire(context.Background(), path, "writer", Exclusive, true)
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	require.NoError(t, h.Restore())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestRestoreWithoutBackupFails(t *testing.T) {
	m := NewManager(nil)
	path := writeTestFile(t, "package x\n")

	h, err := m.Acquire(context.Background(), path, "writer", Exclusive, false)
	require.NoError(t, err)
	defer h.Release()

	assert.Error(t, h.Restore())
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager(nil, WithTimeout(200*time.Millisecond))
	path := writeTestFile(t, "package x\n")

	h, err := m.Acquire(context.Background(), path, "holder", Exclusive, false)
	require.NoError(t, err)

	h.Release()
	h.Release() // must not panic or double-free the slot

	// A double release must not have freed a slot someone else now holds.
	h2, err := m.Acquire(context.Background(), path, "holder-2", Exclusive, false)
	require.NoError(t, err)
	defer h2.Release()
	_, err = m.Acquire(context.Background(), path, "holder-3", Exclusive, false)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestLocksOnDifferentPathsAreIndependent(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()

	a, err := m.Acquire(ctx, writeTestFile(t, "a\n"), "holder", Exclusive, false)
	require.NoError(t, err)
	defer a.Release()

	b, err := m.Acquire(ctx, writeTestFile(t, "b\n"), "holder", Exclusive, false)
	require.NoError(t, err)
	defer b.Release()
}
