package progress

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// Events returns the event log. An absent dataset is empty.
func (e *Engine) Events() ([]tabular.Event, error) {
	text, err := cache.Dataset(e.cache, store.Events)
	if errors.Is(err, store.ErrAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tabular.DecodeEvents(text)
}

// RecordEvent appends one study response to the event log. A zero
// SprintDay is filled from the session.
func (e *Engine) RecordEvent(sess *Session, ev tabular.Event) error {
	if _, err := tabular.ParseAction(string(ev.Action)); err != nil {
		return err
	}
	if ev.Duration < 0 {
		ev.Duration = 0
	}
	if ev.SprintDay == 0 && sess != nil && sess.HasSprintDay {
		ev.SprintDay = sess.SprintDay
	}

	doc, err := e.document(store.Events, tabular.EventSchema)
	if err != nil {
		return err
	}
	doc.Append(ev.Record())
	if err := e.cache.Set(store.Events.String(), doc.String()); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Improves returns the improvement queue in order.
func (e *Engine) Improves() ([]int, error) {
	text, err := cache.Dataset(e.cache, store.Improves)
	if errors.Is(err, store.ErrAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tabular.DecodeImproves(text)
}

// AddImprove queues itemID for extra review. It reports false when the
// item is already queued.
func (e *Engine) AddImprove(itemID int) (bool, error) {
	doc, err := e.document(store.Improves, tabular.ImprovesSchema)
	if err != nil {
		return false, err
	}
	if _, ok := doc.Find(strconv.Itoa(itemID)); ok {
		return false, nil
	}
	doc.Append(tabular.Record{strconv.Itoa(itemID)})
	if err := e.cache.Set(store.Improves.String(), doc.String()); err != nil {
		return false, fmt.Errorf("failed to update improves: %w", err)
	}
	return true, nil
}

// RemoveImprove drops itemID from the queue. It reports whether the item
// was queued.
func (e *Engine) RemoveImprove(itemID int) (bool, error) {
	doc, err := e.document(store.Improves, tabular.ImprovesSchema)
	if err != nil {
		return false, err
	}
	if doc.Delete(strconv.Itoa(itemID)) == 0 {
		return false, nil
	}
	if err := e.cache.Set(store.Improves.String(), doc.String()); err != nil {
		return false, fmt.Errorf("failed to update improves: %w", err)
	}
	return true, nil
}

// ImproveBatch returns the queued items that exist in UserProgress, at
// most SessionSize of them, and makes them the session's batch.
func (e *Engine) ImproveBatch(sess *Session) ([]tabular.Progress, error) {
	ids, err := e.Improves()
	if err != nil {
		return nil, err
	}
	rows, err := e.Progress()
	if err != nil {
		return nil, err
	}
	var batch []tabular.Progress
	for _, p := range rows {
		if slices.Contains(ids, p.ID) {
			batch = append(batch, p)
		}
	}
	if len(batch) > e.opts.SessionSize {
		batch = batch[:e.opts.SessionSize]
	}
	sess.Items = batch
	return batch, nil
}

func (e *Engine) document(d store.Dataset, s *tabular.Schema) (*tabular.Document, error) {
	text, err := cache.Dataset(e.cache, d)
	if errors.Is(err, store.ErrAbsent) {
		return tabular.NewDocument(s), nil
	}
	if err != nil {
		return nil, err
	}
	return tabular.Parse(text, s)
}
