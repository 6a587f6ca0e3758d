// Package progress holds the study domain logic: item promotion, review and
// learn selection, pacing caps, the event log, the improvement queue and
// profile settings.
//
// The engine reads and writes the fast cache only. Persisting to the
// durable store is the sync manager's job.
package progress

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// Defaults for Options.
const (
	DefaultPerDayRate  = 25
	DefaultSessionSize = 10
	DefaultItems       = 3000
	DefaultDurationCap = 60 * time.Second
)

// Options configures an Engine. Zero values select defaults.
type Options struct {
	PerDayRate  int           // learns unlocked per sprint day
	SessionSize int           // items per learn batch
	Items       int           // rows seeded into a fresh UserProgress
	DurationCap time.Duration // per-event cap when totalling study time
	Logger      *log.Logger
	Now         func() time.Time
}

// Engine performs domain operations against the fast cache.
type Engine struct {
	cache  cache.Cache
	opts   Options
	logger *log.Logger
}

// New creates an engine.
// If opts.Logger is nil, a default logger writing to stderr is used.
func New(c cache.Cache, opts Options) *Engine {
	if opts.PerDayRate <= 0 {
		opts.PerDayRate = DefaultPerDayRate
	}
	if opts.SessionSize <= 0 {
		opts.SessionSize = DefaultSessionSize
	}
	if opts.Items <= 0 {
		opts.Items = DefaultItems
	}
	if opts.DurationCap <= 0 {
		opts.DurationCap = DefaultDurationCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[progress] ", log.LstdFlags)
	}
	return &Engine{cache: c, opts: opts, logger: logger}
}

// Session is the context of one study session. It replaces any global
// state: every engine operation that depends on the session takes it
// explicitly.
type Session struct {
	ID        string
	Mode      tabular.Action
	StartedAt time.Time

	// SprintDay is valid only when HasSprintDay is set; a profile without
	// a start date has no sprint day.
	SprintDay    int
	HasSprintDay bool

	// Items is the current batch being studied.
	Items []tabular.Progress
}

// NewSession starts a session in mode, computing the sprint day from the
// profile's start date and recording the mode in the cache.
func (e *Engine) NewSession(mode tabular.Action) (*Session, error) {
	now := e.opts.Now()
	sess := &Session{
		ID:        ulid.Make().String(),
		StartedAt: now,
	}

	settings, err := e.Settings()
	if err != nil {
		return nil, err
	}
	day, err := ComputeSprintDay(settings[KeyStartDate], now)
	switch {
	case err == nil:
		sess.SprintDay = day
		sess.HasSprintDay = true
	case errors.Is(err, ErrSprintDayUnavailable):
		e.logger.Printf("Sprint day unavailable: %v", err)
	default:
		return nil, err
	}

	if mode != "" {
		if err := e.SetMode(sess, mode); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// SetMode changes the session's study mode and records it under the mode
// cache key, which the daemon watches.
func (e *Engine) SetMode(sess *Session, mode tabular.Action) error {
	if _, err := tabular.ParseAction(string(mode)); err != nil {
		return err
	}
	sess.Mode = mode
	if err := e.cache.Set(store.ModeKey, string(mode)); err != nil {
		return fmt.Errorf("failed to record mode: %w", err)
	}
	return nil
}

// Mode returns the mode recorded in the cache, if any.
func (e *Engine) Mode() (tabular.Action, bool, error) {
	v, ok, err := e.cache.Get(store.ModeKey)
	if err != nil || !ok {
		return "", false, err
	}
	a, err := tabular.ParseAction(v)
	if err != nil {
		return "", false, nil
	}
	return a, true, nil
}

// Progress returns every UserProgress row. An absent dataset is empty.
func (e *Engine) Progress() ([]tabular.Progress, error) {
	doc, err := e.progressDocument()
	if err != nil {
		return nil, err
	}
	return doc.Progress()
}

func (e *Engine) progressDocument() (*tabular.Document, error) {
	return e.document(store.UserData, tabular.ProgressSchema)
}

// Promote records a successful response for itemID: the interval is
// 2^level, the level increments and the next review day moves to
// sprintDay + interval. The row is rewritten in place.
//
// An unknown item is logged and returned as store.ErrNotFound; callers
// treat it as a no-op.
func (e *Engine) Promote(sess *Session, itemID int) (tabular.Progress, error) {
	if !sess.HasSprintDay {
		return tabular.Progress{}, ErrSprintDayUnavailable
	}

	doc, err := e.progressDocument()
	if err != nil {
		return tabular.Progress{}, err
	}
	rows, err := doc.Progress()
	if err != nil {
		return tabular.Progress{}, err
	}

	row := -1
	for i := range rows {
		if rows[i].ID == itemID {
			row = i
			break
		}
	}
	if row < 0 {
		e.logger.Printf("Promote: item %d not found", itemID)
		return tabular.Progress{}, fmt.Errorf("item %d: %w", itemID, store.ErrNotFound)
	}

	// Rows are matched by parsed id, so "007" is item 7; rewrite by line.
	next := Promoted(rows[row], sess.SprintDay)
	if !doc.UpdateLine(doc.Lines()[row], next.Record()) {
		return tabular.Progress{}, fmt.Errorf("failed to rewrite item %d on line %d", itemID, doc.Lines()[row])
	}
	if err := e.cache.Set(store.UserData.String(), doc.String()); err != nil {
		return tabular.Progress{}, fmt.Errorf("failed to write progress: %w", err)
	}

	for i := range sess.Items {
		if sess.Items[i].ID == itemID {
			sess.Items[i] = next
		}
	}
	return next, nil
}

// MaxIntervalShift caps the review interval at 2^MaxIntervalShift days.
const MaxIntervalShift = 30

// Promoted returns p after one promotion on sprintDay. Levels beyond
// MaxIntervalShift keep the capped interval.
func Promoted(p tabular.Progress, sprintDay int) tabular.Progress {
	interval := 1 << min(max(p.Level, 0), MaxIntervalShift)
	p.Level++
	p.NextReviewDay = sprintDay + interval
	p.Scheduled = true
	return p
}

// SelectReviewDue returns the scheduled rows due on or before sprintDay,
// in dataset order.
func SelectReviewDue(rows []tabular.Progress, sprintDay int) []tabular.Progress {
	var due []tabular.Progress
	for _, p := range rows {
		if p.Scheduled && p.NextReviewDay <= sprintDay {
			due = append(due, p)
		}
	}
	return due
}

// SelectLearnable returns unlearned rows with id <= maxID in ascending id
// order, at most limit of them. A limit <= 0 means no limit.
func SelectLearnable(rows []tabular.Progress, maxID, limit int) []tabular.Progress {
	var out []tabular.Progress
	for _, p := range rows {
		if p.Level == 0 && p.ID <= maxID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ReviewDue loads the items due for review in the session and makes them
// the session's batch.
func (e *Engine) ReviewDue(sess *Session) ([]tabular.Progress, error) {
	if !sess.HasSprintDay {
		return nil, ErrSprintDayUnavailable
	}
	rows, err := e.Progress()
	if err != nil {
		return nil, err
	}
	sess.Items = SelectReviewDue(rows, sess.SprintDay)
	return sess.Items, nil
}

// Learnable loads the next learn batch. Items are unlocked in id order up
// to the daily learn cap.
func (e *Engine) Learnable(sess *Session) ([]tabular.Progress, error) {
	if !sess.HasSprintDay {
		return nil, ErrSprintDayUnavailable
	}
	settings, err := e.Settings()
	if err != nil {
		return nil, err
	}
	limit, err := DailyLearnCap(settings[KeyLicence], sess.SprintDay, e.opts.PerDayRate)
	if err != nil {
		return nil, err
	}
	rows, err := e.Progress()
	if err != nil {
		return nil, err
	}
	sess.Items = SelectLearnable(rows, limit, e.opts.SessionSize)
	return sess.Items, nil
}
