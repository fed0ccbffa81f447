package lock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, FileName))

	_, err = Acquire(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, l.Release())
	require.NoError(t, l.Release(), "second release is a no-op")

	again, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquireEquivalentPaths(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	_, err = Acquire(filepath.Join(dir, "sub", ".."))
	assert.ErrorIs(t, err, ErrLocked)
}

func TestAcquireIndependentPaths(t *testing.T) {
	a, err := Acquire(t.TempDir())
	require.NoError(t, err)
	defer a.Release()

	b, err := Acquire(t.TempDir())
	require.NoError(t, err)
	defer b.Release()
}

func TestAcquireConcurrent(t *testing.T) {
	dir := t.TempDir()

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		locked  int
		held    []*Lock
	)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := Acquire(dir)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				held = append(held, l)
				return
			}
			if errors.Is(err, ErrLocked) {
				locked++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, workers-1, locked)
	for _, l := range held {
		require.NoError(t, l.Release())
	}
}

func TestAcquireMissingDir(t *testing.T) {
	_, err := Acquire(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocked))

	// A failed acquire must not leave a registry entry behind.
	dir := filepath.Join(t.TempDir(), "later")
	_, err = Acquire(dir)
	require.Error(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	l, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}
