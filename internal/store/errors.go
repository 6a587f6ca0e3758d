package store

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the storage layer.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, store.ErrBackendUnavailable) {
//	    // Offer the backup export instead
//	}
var (
	// ErrFormat is returned when serialized tabular text cannot be parsed.
	// It is fatal for the dataset load that produced it.
	ErrFormat = errors.New("malformed tabular data")

	// ErrNotFound is returned when an operation references an id that is
	// absent from a dataset. Callers log it and treat it as a no-op.
	ErrNotFound = errors.New("not found")

	// ErrAbsent is returned when a dataset has never been initialized.
	// Unlike ErrFormat it is recoverable: the dataset is simply empty.
	ErrAbsent = errors.New("dataset absent")

	// ErrBackendUnavailable is returned when the durable store cannot be
	// opened or a transaction fails.
	ErrBackendUnavailable = errors.New("durable store unavailable")

	// ErrBlocked is returned when the durable database cannot be deleted
	// because a connection is still open.
	ErrBlocked = errors.New("durable store deletion blocked")

	// ErrQuotaExceeded is returned when a cache write would exceed the
	// configured capacity.
	ErrQuotaExceeded = errors.New("cache quota exceeded")

	// ErrWipeVerification is returned when data remains in either backend
	// after a full wipe.
	ErrWipeVerification = errors.New("wipe verification failed")

	// ErrSyncInProgress is returned by explicit operations that refuse to
	// run while a flush is in flight.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrUnknownDataset is returned for a dataset key with no declared
	// schema or collection.
	ErrUnknownDataset = errors.New("unknown dataset")

	// ErrVersion is returned when the durable store on disk has a newer
	// schema version than the one requested.
	ErrVersion = errors.New("durable schema version is newer than requested")
)

// FormatError describes where tabular parsing failed.
type FormatError struct {
	Dataset Dataset
	Line    int // 1-based, 0 when not tied to a line
	Reason  string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Dataset, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Dataset, e.Reason)
}

// Unwrap lets errors.Is match ErrFormat.
func (e *FormatError) Unwrap() error {
	return ErrFormat
}

// WipeVerificationError lists what survived a full wipe.
type WipeVerificationError struct {
	CacheKeys   []string
	Collections []Dataset
}

func (e *WipeVerificationError) Error() string {
	var parts []string
	if len(e.CacheKeys) > 0 {
		parts = append(parts, "cache still holds "+strings.Join(e.CacheKeys, ", "))
	}
	if len(e.Collections) > 0 {
		names := make([]string, len(e.Collections))
		for i, c := range e.Collections {
			names[i] = string(c)
		}
		parts = append(parts, "durable store still holds "+strings.Join(names, ", "))
	}
	return "wipe verification failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrWipeVerification.
func (e *WipeVerificationError) Unwrap() error {
	return ErrWipeVerification
}

// IsRecoverable returns true if the error describes missing data rather
// than damaged data. Callers may continue with an empty state.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAbsent)
}

// ShouldFallback returns true if the error means durable persistence is
// not possible right now and the export fallback should be offered.
func ShouldFallback(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrBackendUnavailable) || errors.Is(err, ErrBlocked)
}

// IsFatal returns true if the error must be surfaced to the user instead
// of being degraded or retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	// Guessing at corrupted progress data risks silent data loss
	if errors.Is(err, ErrFormat) {
		return true
	}

	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}

	// A partial wipe breaks the fresh start guarantee
	if errors.Is(err, ErrWipeVerification) {
		return true
	}

	return false
}
