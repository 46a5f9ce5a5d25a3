package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events into one batch per window.
// Events for the same path are merged:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE or RENAME + CREATE = MODIFY (file was replaced, as editors do on save)
type Debouncer struct {
	window  time.Duration
	pending map[string]FileEvent
	order   []string
	mu      sync.Mutex
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a new debouncer with the given window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 4),
	}
}

// Add adds an event and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(prev, event)
		if keep {
			d.pending[event.Path] = merged
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = event
		d.order = append(d.order, event.Path)
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges next into prev. keep is false when the two cancel out.
func coalesce(prev, next FileEvent) (merged FileEvent, keep bool) {
	switch prev.Operation {
	case OpCreate:
		switch next.Operation {
		case OpModify:
			prev.Timestamp = next.Timestamp
			return prev, true
		case OpDelete, OpRename:
			return FileEvent{}, false
		}
	case OpDelete, OpRename:
		if next.Operation == OpCreate || next.Operation == OpModify {
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}

// flush emits all pending events in arrival order.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, path := range d.order {
		if ev, ok := d.pending[path]; ok {
			events = append(events, ev)
			delete(d.pending, path)
		}
	}
	d.pending = make(map[string]FileEvent)
	d.order = nil

	select {
	case d.output <- events:
	default:
		slog.Warn("debouncer output full, dropping batch",
			slog.Int("batch_size", len(events)))
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
