package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a single file with fsnotify, or by polling when
// fsnotify cannot be used.
//
// fsnotify watches the parent directory: editors commonly save by writing a
// temporary file and renaming it over the original, which drops a watch
// placed on the file itself.
type FileWatcher struct {
	fsWatcher   *fsnotify.Watcher
	useFsnotify bool
	debouncer   *Debouncer
	errors      chan error
	path        string
	opts        Options

	mu      sync.RWMutex
	stopped bool
}

// NewFileWatcher creates a watcher. It tries fsnotify first.
func NewFileWatcher(opts Options) (*FileWatcher, error) {
	opts = opts.WithDefaults()

	w := &FileWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		errors:    make(chan error, 10),
		opts:      opts,
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			w.useFsnotify = true
		} else {
			slog.Warn("fsnotify unavailable, polling settings file",
				slog.String("error", err.Error()))
		}
	}
	return w, nil
}

// Start watches path until ctx is cancelled or Stop is called.
func (w *FileWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.path = absPath
	w.mu.Unlock()

	slog.Debug("watching settings file",
		slog.String("path", absPath),
		slog.String("mode", w.WatcherType()))

	if w.useFsnotify {
		if err := w.fsWatcher.Add(filepath.Dir(absPath)); err != nil {
			_ = w.Stop()
			return fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
		}
		return w.runFsnotify(ctx)
	}

	poller := NewPollingWatcher(w.opts.PollInterval, w.debouncer.Add)
	err = poller.Start(ctx, absPath)
	_ = w.Stop()
	return err
}

func (w *FileWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handleFsnotifyEvent keeps events for the watched file and converts them.
func (w *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// chmod
		return
	}

	w.debouncer.Add(FileEvent{
		Path:      w.path,
		Operation: op,
		Timestamp: time.Now(),
	})
}

func (w *FileWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops the watcher and closes its channels. Safe to call multiple times.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.errors)
	return nil
}

// Events returns debounced batches of changes to the file.
func (w *FileWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *FileWatcher) Errors() <-chan error {
	return w.errors
}

// WatcherType returns "fsnotify" or "polling".
func (w *FileWatcher) WatcherType() string {
	if w.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}

// Path returns the watched file.
func (w *FileWatcher) Path() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.path
}
