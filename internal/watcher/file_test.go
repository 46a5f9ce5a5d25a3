package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, w *FileWatcher, path string) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events channel closed")
			for _, ev := range batch {
				if ev.Path == path {
					return ev
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for file event")
			return FileEvent{}
		}
	}
}

func startWatcher(t *testing.T, opts Options, path string) *FileWatcher {
	t.Helper()
	w, err := NewFileWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx, path) }()
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	// Let the watch register before touching the file.
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestFileWatcher_DetectsModify(t *testing.T) {
	// Given: a watched settings file
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n"), 0o644))
	w := startWatcher(t, Options{DebounceWindow: 20 * time.Millisecond}, path)

	// When: the file is rewritten
	require.NoError(t, os.WriteFile(path, []byte("search:\n  safe_search: 1\n"), 0o644))

	// Then: a change for that path is reported
	ev := waitForEvent(t, w, path)
	assert.NotEqual(t, OpDelete, ev.Operation)
	assert.Equal(t, path, w.Path())
}

func TestFileWatcher_IgnoresSiblings(t *testing.T) {
	// Given: a watched settings file
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))
	w := startWatcher(t, Options{DebounceWindow: 20 * time.Millisecond}, path)

	// When: only another file in the directory changes
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yml"), []byte("b: 2\n"), 0o644))

	// Then: nothing is reported
	select {
	case batch := <-w.Events():
		for _, ev := range batch {
			assert.NotEqual(t, filepath.Join(dir, "other.yml"), ev.Path)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFileWatcher_ForcePolling(t *testing.T) {
	// Given: a polling watcher
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0o644))
	w := startWatcher(t, Options{
		DebounceWindow: 10 * time.Millisecond,
		PollInterval:   20 * time.Millisecond,
		ForcePolling:   true,
	}, path)
	assert.Equal(t, "polling", w.WatcherType())

	// When: the file grows
	require.NoError(t, os.WriteFile(path, []byte("a: 1\nb: 2\n"), 0o644))

	// Then: the poller reports a modify
	ev := waitForEvent(t, w, path)
	assert.Equal(t, OpModify, ev.Operation)
}
