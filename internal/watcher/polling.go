package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PollingWatcher detects changes to one file by periodically stating it.
// Used as a fallback when fsnotify is not available.
type PollingWatcher struct {
	interval time.Duration
	path     string
	last     fileSnapshot
	emit     func(FileEvent)
}

type fileSnapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

// NewPollingWatcher creates a polling watcher that reports through emit.
func NewPollingWatcher(interval time.Duration, emit func(FileEvent)) *PollingWatcher {
	return &PollingWatcher{interval: interval, emit: emit}
}

// Start polls path until ctx is cancelled.
func (p *PollingWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	p.path = absPath
	p.last = snapshot(absPath)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.detectChange()
		}
	}
}

func snapshot(path string) fileSnapshot {
	info, err := os.Stat(path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// detectChange compares the file with the last snapshot and emits one event.
func (p *PollingWatcher) detectChange() {
	cur := snapshot(p.path)
	prev := p.last
	p.last = cur

	var op Operation
	switch {
	case !prev.exists && cur.exists:
		op = OpCreate
	case prev.exists && !cur.exists:
		op = OpDelete
	case cur.exists && (prev.modTime != cur.modTime || prev.size != cur.size):
		op = OpModify
	default:
		return
	}
	p.emit(FileEvent{Path: p.path, Operation: op, Timestamp: time.Now()})
}
