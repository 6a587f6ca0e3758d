package sync

import (
	"context"
	"time"

	"github.com/freshstart/freshstart/internal/store"
)

// DatasetStatus compares one dataset across both backends.
type DatasetStatus struct {
	Dataset    store.Dataset `json:"dataset" yaml:"dataset"`
	InCache    bool          `json:"in_cache" yaml:"in_cache"`
	CacheBytes int           `json:"cache_bytes" yaml:"cache_bytes"`
	InDurable  bool          `json:"in_durable" yaml:"in_durable"`
	DurableAt  time.Time     `json:"durable_at,omitempty" yaml:"durable_at,omitempty"`
	InSync     bool          `json:"in_sync" yaml:"in_sync"` // both hold the same text
	Err        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Status reports every durable collection's presence in both backends.
func (m *Manager) Status(ctx context.Context) ([]DatasetStatus, error) {
	var out []DatasetStatus
	for _, d := range m.durable.Datasets() {
		st := DatasetStatus{Dataset: d}

		text, present, err := m.cache.Get(d.String())
		if err != nil {
			return nil, err
		}
		st.InCache = present
		st.CacheBytes = len(text)

		rec, found, err := m.durable.GetRecord(ctx, d, store.CurrentRecordID)
		if err != nil {
			st.Err = err.Error()
		} else if found {
			st.InDurable = true
			st.DurableAt = time.UnixMilli(rec.Timestamp)
			st.InSync = present && rec.Data == text
		}
		out = append(out, st)
	}
	return out, nil
}
