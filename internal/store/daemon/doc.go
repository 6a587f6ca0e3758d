// Package daemon maps process and file-system lifecycle events onto sync
// triggers for a long-running session.
//
// # Architecture
//
// The daemon consists of two components:
//
//   - CacheWatcher: fsnotify monitoring of the fast cache directory
//   - Daemon: turns watcher events, signals and a periodic job into
//     sync manager triggers
//
// # Trigger mapping
//
//	SIGINT, SIGTERM        unload (best-effort flush, then exit)
//	SIGUSR1                hidden
//	write of the mode key  mode-change (immediate)
//	write of a dataset key page-change (debounced)
//	periodic job (gocron)  interval
//
// Every trigger goes through the manager's guard, so a burst of events
// yields at most one flush per cooldown. Dataset writes refused by the
// guard stay queued and are retried on the next debounce tick.
//
// # Usage
//
//	d, err := daemon.New(manager, cacheDir, daemon.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	return d.Start(ctx) // blocks until a termination signal or ctx is done
package daemon
