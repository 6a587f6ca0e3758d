package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freshstart/freshstart/internal/store"
)

// ClearAllData wipes both backends and verifies the result.
//
// It waits for any in-flight flush and holds the Syncing state for the
// duration, so no flush can re-populate the durable store mid-wipe. A
// deletion blocked by an open connection is retried once after the
// blocked wait. Data left in either backend afterwards is returned as a
// *store.WipeVerificationError.
func (m *Manager) ClearAllData(ctx context.Context) error {
	m.acquire()
	defer m.release()

	m.logger.Printf("Clearing all data")

	if err := m.deleteDatabase(ctx); err != nil {
		// Verification below decides whether this matters.
		m.logger.Printf("Warning: durable store deletion failed: %v", err)
	}

	if err := m.cache.Clear(); err != nil {
		m.logger.Printf("Warning: cache clear failed: %v", err)
	}

	err := m.verifyEmpty(ctx)
	if err != nil {
		m.logger.Printf("Error: %v", err)
	} else {
		m.logger.Printf("All data cleared")
	}
	m.emit(Event{Kind: EventWiped, Err: err})
	return err
}

func (m *Manager) deleteDatabase(ctx context.Context) error {
	err := m.durable.DeleteDatabase(ctx)
	if !errors.Is(err, store.ErrBlocked) {
		return err
	}

	m.logger.Printf("Durable store deletion blocked, retrying in %s", m.blockedWait)
	timer := time.NewTimer(m.blockedWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return m.durable.DeleteDatabase(ctx)
}

func (m *Manager) verifyEmpty(ctx context.Context) error {
	keys, err := m.cache.Keys()
	if err != nil {
		return fmt.Errorf("%w: cache could not be checked: %v", store.ErrWipeVerification, err)
	}
	collections, err := m.durable.NonEmpty(ctx)
	if err != nil {
		return fmt.Errorf("%w: durable store could not be checked: %v", store.ErrWipeVerification, err)
	}
	if len(keys) > 0 || len(collections) > 0 {
		return &store.WipeVerificationError{CacheKeys: keys, Collections: collections}
	}
	return nil
}
