package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/searxng/searxng-sub003/internal/search"
)

// BuildFunc loads the settings at path and builds a registry from them.
// It returns an error when the settings or any engine are invalid.
type BuildFunc func(path string) (*search.Registry, error)

// RegistrySwapper installs a registry and returns the one it replaced.
// *search.Aggregator satisfies it.
type RegistrySwapper interface {
	SetRegistry(reg *search.Registry) *search.Registry
}

// ReloadStats counts reload attempts.
type ReloadStats struct {
	Reloads    int
	Failures   int
	LastError  string
	LastReload time.Time
}

// Reloader rebuilds the engine registry when the settings file changes.
type Reloader struct {
	path   string
	build  BuildFunc
	target RegistrySwapper

	mu    sync.Mutex
	stats ReloadStats
}

// NewReloader creates a reloader for the settings file at path.
func NewReloader(path string, build BuildFunc, target RegistrySwapper) *Reloader {
	return &Reloader{path: path, build: build, target: target}
}

// Reload builds a registry from the current settings and swaps it in.
// On error the active registry is left untouched.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	reg, err := r.build(r.path)
	if err != nil {
		r.stats.Failures++
		r.stats.LastError = err.Error()
		if reg != nil {
			_ = reg.Close()
		}
		slog.Warn("settings_reload_failed",
			slog.String("path", r.path),
			slog.String("error", err.Error()))
		return err
	}

	old := r.target.SetRegistry(reg)
	if old != nil && old != reg {
		if err := old.Close(); err != nil {
			slog.Warn("registry_close_failed", slog.String("error", err.Error()))
		}
	}

	r.stats.Reloads++
	r.stats.LastError = ""
	r.stats.LastReload = time.Now()
	slog.Info("settings_reloaded",
		slog.String("path", r.path),
		slog.Int("engines", len(reg.Engines())),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Stats returns the reload counters.
func (r *Reloader) Stats() ReloadStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Source is a stream of debounced file changes, such as a FileWatcher.
type Source interface {
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// Run reloads on every change batch from src until ctx is cancelled or
// src closes. A batch whose last event deletes the file is ignored so a
// save in progress does not tear down the engines.
func (r *Reloader) Run(ctx context.Context, src Source) {
	events := src.Events()
	errs := src.Errors()
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-events:
			if !ok {
				return
			}
			if len(batch) == 0 {
				continue
			}
			last := batch[len(batch)-1]
			if last.Operation == OpDelete || last.Operation == OpRename {
				slog.Warn("settings_file_removed", slog.String("path", last.Path))
				continue
			}
			_ = r.Reload()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("settings_watch_error", slog.String("error", err.Error()))
		}
	}
}
