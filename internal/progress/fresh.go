package progress

import (
	"context"
	"fmt"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/sync"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// Wiper is the part of the sync manager a fresh start needs.
type Wiper interface {
	ClearAllData(ctx context.Context) error
	Persist(ctx context.Context, datasets ...store.Dataset) (*sync.FlushResult, error)
}

// FreshStart wipes every dataset in both backends and seeds a new profile:
// settings from p, the given curriculum, an unlearned UserProgress row per
// curriculum item (or Options.Items rows without a curriculum) and empty
// improves and events. The seeded datasets are
// persisted immediately.
//
// Nothing is seeded when the wipe fails, so a failed verification leaves
// the caller free to retry.
func (e *Engine) FreshStart(ctx context.Context, w Wiper, p Profile, curriculum []tabular.Item) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	if err := w.ClearAllData(ctx); err != nil {
		return Profile{}, fmt.Errorf("failed to clear data: %w", err)
	}

	saved, err := e.SaveProfile(p)
	if err != nil {
		return Profile{}, err
	}

	seeds := map[store.Dataset]string{
		store.UserData: tabular.SeedProgress(e.opts.Items),
		store.Improves: tabular.EncodeImproves(nil),
		store.Events:   tabular.EncodeEvents(nil),
	}
	if len(curriculum) > 0 {
		rows := make([]tabular.Progress, len(curriculum))
		for i, it := range curriculum {
			rows[i] = tabular.Progress{ID: it.ID}
		}
		seeds[store.UserData] = tabular.EncodeProgress(rows)
		seeds[store.Curriculum] = tabular.EncodeCurriculum(curriculum)
	}
	for _, d := range store.AllDatasets() {
		text, ok := seeds[d]
		if !ok {
			continue
		}
		if err := e.cache.Set(d.String(), text); err != nil {
			return Profile{}, fmt.Errorf("failed to seed %s: %w", d, err)
		}
	}

	res, err := w.Persist(ctx)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to persist fresh start: %w", err)
	}
	if res.Failed() {
		e.logger.Printf("Fresh start persisted with errors: %v", res.Err)
	}
	e.logger.Printf("Fresh start complete for %s", saved.Nickname)
	return saved, nil
}
