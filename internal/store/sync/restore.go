package sync

import (
	"context"
	"fmt"

	"github.com/freshstart/freshstart/internal/store"
)

// Restore copies durable records into the cache for every key the cache
// does not already hold. A populated cache key is never overwritten.
//
// A missing durable record means first run and is not an error. A durable
// read failure is logged and the dataset is skipped. Cache failures are
// returned.
func (m *Manager) Restore(ctx context.Context) (*RestoreResult, error) {
	result := &RestoreResult{}

	for _, d := range m.durable.Datasets() {
		_, present, err := m.cache.Get(d.String())
		if err != nil {
			return result, fmt.Errorf("failed to read %s from cache: %w", d, err)
		}
		if present {
			result.Kept = append(result.Kept, d)
			continue
		}

		rec, found, err := m.durable.GetRecord(ctx, d, store.CurrentRecordID)
		if err != nil {
			m.logger.Printf("Warning: failed to restore %s: %v", d, err)
			result.Failed = append(result.Failed, d)
			continue
		}
		if !found {
			result.Missing = append(result.Missing, d)
			continue
		}

		if err := m.cache.Set(d.String(), rec.Data); err != nil {
			return result, fmt.Errorf("failed to restore %s into cache: %w", d, err)
		}
		result.Restored = append(result.Restored, d)
	}

	if len(result.Restored) > 0 {
		m.logger.Printf("Restored %d datasets from durable store", len(result.Restored))
	}
	m.emit(Event{Kind: EventRestored, Restore: result})
	return result, nil
}

// IsNewUser reports whether neither backend holds user progress.
func (m *Manager) IsNewUser(ctx context.Context) (bool, error) {
	_, present, err := m.cache.Get(store.UserData.String())
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}
	if present {
		return false, nil
	}
	_, found, err := m.durable.GetRecord(ctx, store.UserData, store.CurrentRecordID)
	if err != nil {
		return false, err
	}
	return !found, nil
}
