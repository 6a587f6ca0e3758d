// Package sync moves datasets between the fast cache and the durable store.
//
// # Overview
//
// The fast cache is the working copy of a session; the durable store is the
// system of record. The Manager is the only component allowed to write the
// durable store, and every transfer is directional:
//
//	Fast cache (working copy)
//	     ├── userData   ──┐
//	     ├── improves   ──┼── flush (cache wins) ──→  Durable store
//	     └── events     ──┘                            (system of record)
//	                                                         │
//	     every key  ←── restore (only into empty keys) ──────┘
//
// # Flushes
//
// Flushes are gated by a cooldown and an in-flight guard. A trigger arriving
// while a flush runs, or within the cooldown of the previous flush, is a
// no-op. Each dataset is written in its own transaction; if any write fails
// the manager falls back to writing an export artifact instead of retrying.
//
//	m := sync.New(c, durable, sync.Options{Exporter: exporter})
//	if _, err := m.Restore(ctx); err != nil {
//	    return err
//	}
//	// ... mutate the cache ...
//	m.Notify(sync.TriggerPageChange)
//	m.Wait()
//
// # Full wipe
//
// ClearAllData deletes the durable database, clears the cache and verifies
// both are empty. Residual data is reported as a *store.WipeVerificationError.
package sync
