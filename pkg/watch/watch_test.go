package watch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pyqualify/pkg/watch"
)

func startWatcher(t *testing.T, roots []string, opts watch.Options) <-chan []string {
	t.Helper()

	w, err := watch.New(roots, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []string, 8)
	done := make(chan error, 1)

	go func() {
		done <- w.Run(ctx, func(_ context.Context, paths []string) error {
			batches <- paths

			return nil
		})
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
		require.NoError(t, w.Close())
	})

	return batches
}

func waitBatch(t *testing.T, batches <-chan []string) []string {
	t.Helper()

	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")

		return nil
	}
}

func TestWatcher_CoalescesWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	batches := startWatcher(t, []string{dir}, watch.Options{Debounce: 50 * time.Millisecond})

	a := filepath.Join(dir, "a.py")
	b := filepath.Join(dir, "b.py")
	require.NoError(t, os.WriteFile(a, []byte("x = 1\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("y = 1\n"), 0o600))
	require.NoError(t, os.WriteFile(a, []byte("x = 2\n"), 0o600))

	assert.Equal(t, []string{a, b}, waitBatch(t, batches))
}

func TestWatcher_SkipsAndFollowsNewDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	skip := func(path string, _ bool) bool {
		return filepath.Base(path) == "ignored" || strings.HasSuffix(path, ".txt")
	}

	batches := startWatcher(t, []string{dir}, watch.Options{Debounce: 50 * time.Millisecond, Skip: skip})

	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o750))

	// Let the new directory be picked up before writing into it.
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(sub, "m.py")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(target, []byte("x = 1\n"), 0o600))

	assert.Equal(t, []string{target}, waitBatch(t, batches))
}

func TestWatcher_HandlerErrorStopsRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	w, err := watch.New([]string{dir}, watch.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, w.Close()) })

	boom := errors.New("boom")
	done := make(chan error, 1)

	go func() {
		done <- w.Run(context.Background(), func(context.Context, []string) error { return boom })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x"), 0o600))

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestNew_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := watch.New([]string{filepath.Join(t.TempDir(), "absent")}, watch.Options{})
	require.Error(t, err)
}
