// Package watcher reloads the settings file while the server runs.
//
// A FileWatcher watches one file with fsnotify, falling back to polling
// where fsnotify is unavailable (network mounts, some containers). Events
// are debounced so an editor's write-rename-chmod burst becomes one change.
// A Reloader turns each change into a new engine registry and swaps it into
// the running aggregator; a settings file that fails to load leaves the
// previous registry active.
//
// Usage:
//
//	w, err := watcher.NewFileWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	r := watcher.NewReloader(path, build, aggregator)
//	go func() { _ = w.Start(ctx, path) }()
//	r.Run(ctx, w)
package watcher
