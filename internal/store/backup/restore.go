package backup

import (
	"fmt"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// ImportOptions configures Import.
type ImportOptions struct {
	Overwrite bool // replace datasets already present in the cache
	DryRun    bool // validate without writing
}

// ImportResult reports what Import did per dataset.
type ImportResult struct {
	Written []store.Dataset
	Skipped []store.Dataset // present in the cache and not overwritten
	Missing []store.Dataset // null in the snapshot
}

// Import loads a snapshot into the cache. Every dataset is decoded before
// anything is written, so a damaged artifact leaves the cache untouched.
//
// Without Overwrite the cache wins, matching the restore rule of the sync
// manager.
func Import(c cache.Cache, snap *Snapshot, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	type pending struct {
		d    store.Dataset
		text string
	}
	var writes []pending

	for _, d := range store.MutableDatasets() {
		text, ok := snap.Dataset(d)
		if !ok {
			result.Missing = append(result.Missing, d)
			continue
		}

		schema, err := tabular.SchemaFor(d)
		if err != nil {
			return nil, err
		}
		if _, err := tabular.Decode(text, schema); err != nil {
			return nil, fmt.Errorf("backup holds unreadable %s: %w", d, err)
		}

		_, present, err := c.Get(d.String())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", d, err)
		}
		if present && !opts.Overwrite {
			result.Skipped = append(result.Skipped, d)
			continue
		}
		writes = append(writes, pending{d: d, text: text})
	}

	for _, w := range writes {
		if !opts.DryRun {
			if err := c.Set(w.d.String(), w.text); err != nil {
				return result, fmt.Errorf("failed to write %s: %w", w.d, err)
			}
		}
		result.Written = append(result.Written, w.d)
	}

	if snap.Prefix != "" && !opts.DryRun {
		if _, ok, _ := c.Get(store.PrefixKey); !ok {
			if err := c.Set(store.PrefixKey, snap.Prefix); err != nil {
				return result, fmt.Errorf("failed to write prefix: %w", err)
			}
		}
	}

	return result, nil
}
