// Package watcher notices edits to the config file so new index bindings can
// be applied without a restart.
//
// fsnotify watches the file's directory, since editors usually save by
// writing a temporary file and renaming it over the original. When fsnotify
// cannot be initialized the watcher falls back to polling the file's size
// and modification time. Bursts of events are coalesced by a Debouncer.
//
// Usage:
//
//	w := watcher.NewConfigWatcher("roomdex.yaml", watcher.DefaultOptions(), logger)
//	err := w.Run(ctx, func(ctx context.Context) error {
//	    return reload(ctx)
//	})
package watcher
