package sync

import (
	"time"

	"github.com/freshstart/freshstart/internal/store"
)

// Trigger names the cause of a flush.
type Trigger int

const (
	// TriggerHidden fires when the session is backgrounded.
	TriggerHidden Trigger = iota
	// TriggerUnload fires when the session ends. The flush is best
	// effort: nothing waits for it unless the caller does.
	TriggerUnload
	// TriggerModeChange fires when the study mode changes.
	TriggerModeChange
	// TriggerPageChange fires after a unit of work completes.
	TriggerPageChange
	// TriggerInterval fires from the periodic job.
	TriggerInterval
	// TriggerManual is an explicit flush-and-confirm.
	TriggerManual
	// TriggerPersist is an ungated write after a deliberate whole-dataset
	// change.
	TriggerPersist
)

var triggerNames = map[Trigger]string{
	TriggerHidden:     "hidden",
	TriggerUnload:     "unload",
	TriggerModeChange: "mode-change",
	TriggerPageChange: "page-change",
	TriggerInterval:   "interval",
	TriggerManual:     "manual",
	TriggerPersist:    "persist",
}

func (t Trigger) String() string {
	if name, ok := triggerNames[t]; ok {
		return name
	}
	return "unknown"
}

// EventKind classifies manager events.
type EventKind string

const (
	EventFlushStarted  EventKind = "flush-started"
	EventFlushFinished EventKind = "flush-finished"
	EventSkipped       EventKind = "flush-skipped"
	EventFallback      EventKind = "fallback-export"
	EventRestored      EventKind = "restored"
	EventWiped         EventKind = "wiped"
)

// Event is delivered to listeners registered with OnEvent.
type Event struct {
	Kind    EventKind
	Trigger Trigger
	At      time.Time
	Result  *FlushResult   // EventFlushFinished
	Restore *RestoreResult // EventRestored
	Path    string         // EventFallback
	Err     error          // EventWiped
}

// DatasetResult is the outcome of one dataset in a flush.
type DatasetResult struct {
	Dataset store.Dataset
	Written bool
	Absent  bool // nothing in the cache to write
	Bytes   int
	Err     error
}

// FlushResult is the outcome of a flush.
type FlushResult struct {
	Trigger    Trigger
	Skipped    bool // refused by the cooldown or in-flight guard
	Started    time.Time
	Finished   time.Time
	Datasets   []DatasetResult
	BackupPath string // set when the fallback export was written
	Err        error  // every dataset failure, joined
}

// Failed reports whether any dataset failed.
func (r *FlushResult) Failed() bool {
	return r.Err != nil
}

// WrittenCount returns how many datasets were written.
func (r *FlushResult) WrittenCount() int {
	n := 0
	for _, d := range r.Datasets {
		if d.Written {
			n++
		}
	}
	return n
}

// RestoreResult is the outcome of a restore.
type RestoreResult struct {
	Restored []store.Dataset // copied from the durable store
	Kept     []store.Dataset // cache already held a value
	Missing  []store.Dataset // no durable record (first run)
	Failed   []store.Dataset // durable read failed
}
