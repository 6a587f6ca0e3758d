// Package store defines the datasets shared by the fast cache and the
// durable store, and the error taxonomy of the storage layer.
//
// Each dataset is held twice: as serialized tabular text in the fast cache
// (the working copy of an open session) and as a single record in a
// durable collection (the system of record across sessions). The sync
// subpackage is the only component that moves data between the two.
package store

import "fmt"

// Dataset names a logical dataset. The value doubles as the fast cache key
// and the durable collection name.
type Dataset string

const (
	// UserData holds per-item progress rows (ID, NRD, LEVEL).
	UserData Dataset = "userData"
	// Improves holds item ids flagged for extra review.
	Improves Dataset = "improves"
	// Events is the append-only study event log.
	Events Dataset = "events"
	// Curriculum holds the read-mostly content records.
	Curriculum Dataset = "curriculum"
	// Settings holds profile key/value pairs.
	Settings Dataset = "settings"
)

// Non-dataset cache keys.
const (
	// ModeKey stores the current study mode (improve, review, learn, ...).
	ModeKey = "mode"
	// PrefixKey stores the user prefix used to name export artifacts.
	PrefixKey = "prefix"
)

// CurrentRecordID is the fixed identifier of the single durable record
// held by each collection.
const CurrentRecordID = "current"

// String returns the dataset key.
func (d Dataset) String() string {
	return string(d)
}

// MutableDatasets returns the datasets flushed by the sync routine.
// Curriculum and Settings are excluded as low-churn.
func MutableDatasets() []Dataset {
	return []Dataset{UserData, Improves, Events}
}

// AllDatasets returns every dataset in a stable order.
func AllDatasets() []Dataset {
	return []Dataset{UserData, Improves, Events, Curriculum, Settings}
}

// ParseDataset validates a dataset key.
func ParseDataset(s string) (Dataset, error) {
	for _, d := range AllDatasets() {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
}
