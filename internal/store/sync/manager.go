package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	gosync "sync"
	"time"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/db"
)

// Durable is the durable store as used by the manager. *db.Store
// implements it.
type Durable interface {
	// Datasets lists the collections of the store's schema version.
	Datasets() []store.Dataset
	PutRecord(ctx context.Context, d store.Dataset, rec db.Record) error
	GetRecord(ctx context.Context, d store.Dataset, id string) (db.Record, bool, error)
	DeleteDatabase(ctx context.Context) error
	// NonEmpty lists collections that still hold records.
	NonEmpty(ctx context.Context) ([]store.Dataset, error)
}

// Exporter writes the fallback export artifact and returns its location.
// *backup.Exporter implements it.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// State is the manager's flush state.
type State int

const (
	Idle State = iota
	Syncing
)

func (s State) String() string {
	if s == Syncing {
		return "syncing"
	}
	return "idle"
}

// Default timings.
const (
	DefaultCooldown    = time.Second
	DefaultBlockedWait = time.Second
)

// Options configures a Manager. Zero values select defaults.
type Options struct {
	Cooldown    time.Duration
	BlockedWait time.Duration // pause before retrying a blocked database deletion
	Exporter    Exporter
	Logger      *log.Logger
	Now         func() time.Time
}

// Manager orchestrates every transfer between the fast cache and the
// durable store.
type Manager struct {
	cache       cache.Cache
	durable     Durable
	exporter    Exporter
	logger      *log.Logger
	cooldown    time.Duration
	blockedWait time.Duration
	now         func() time.Time

	mu        gosync.Mutex
	idle      *gosync.Cond // signalled on every Syncing -> Idle transition
	state     State
	lastSync  time.Time
	listeners []func(Event)
}

// New creates a manager.
// If opts.Logger is nil, a default logger writing to stderr is used.
func New(c cache.Cache, durable Durable, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.BlockedWait <= 0 {
		opts.BlockedWait = DefaultBlockedWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		cache:       c,
		durable:     durable,
		exporter:    opts.Exporter,
		logger:      opts.Logger,
		cooldown:    opts.Cooldown,
		blockedWait: opts.BlockedWait,
		now:         opts.Now,
	}
	m.idle = gosync.NewCond(&m.mu)
	return m
}

// State returns the current flush state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastSync returns when the last gated flush started.
func (m *Manager) LastSync() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync
}

// OnEvent registers a listener called for every manager event. Listeners
// run synchronously on the goroutine that produced the event and must not
// call back into the manager.
func (m *Manager) OnEvent(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = m.now()
	}
	m.mu.Lock()
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// tryAcquire performs the Idle -> Syncing transition for a gated flush.
func (m *Manager) tryAcquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.state == Syncing {
		return false
	}
	if now.Sub(m.lastSync) <= m.cooldown {
		return false
	}
	m.state = Syncing
	m.lastSync = now
	return true
}

// acquire waits for Idle and enters Syncing without the cooldown check.
func (m *Manager) acquire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.state == Syncing {
		m.idle.Wait()
	}
	m.state = Syncing
}

func (m *Manager) release() {
	m.mu.Lock()
	m.state = Idle
	m.mu.Unlock()
	m.idle.Broadcast()
}

// Wait blocks until no flush is in flight.
func (m *Manager) Wait() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.state == Syncing {
		m.idle.Wait()
	}
}

// WaitContext is Wait bounded by ctx.
func (m *Manager) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify fires a trigger. If the guard allows it, a flush starts in the
// background and Notify reports true; otherwise the trigger is dropped.
//
// Background flushes have no cancellation point once started.
func (m *Manager) Notify(trigger Trigger) bool {
	if !m.tryAcquire() {
		m.emit(Event{Kind: EventSkipped, Trigger: trigger})
		return false
	}

	go func() {
		defer m.release()
		m.flush(context.Background(), trigger, store.MutableDatasets())
	}()
	return true
}

// Sync runs a gated flush on the calling goroutine. A flush refused by the
// guard returns a result with Skipped set.
func (m *Manager) Sync(ctx context.Context) *FlushResult {
	if !m.tryAcquire() {
		m.emit(Event{Kind: EventSkipped, Trigger: TriggerManual})
		return &FlushResult{Trigger: TriggerManual, Skipped: true}
	}
	defer m.release()
	return m.flush(ctx, TriggerManual, store.MutableDatasets())
}

// Persist writes the named datasets (every durable collection when none
// are named) regardless of the cooldown. It refuses with
// store.ErrSyncInProgress while a flush is in flight.
//
// Persist is used after deliberate whole-dataset writes such as a fresh
// start or a profile change.
func (m *Manager) Persist(ctx context.Context, datasets ...store.Dataset) (*FlushResult, error) {
	m.mu.Lock()
	if m.state == Syncing {
		m.mu.Unlock()
		return nil, store.ErrSyncInProgress
	}
	m.state = Syncing
	m.mu.Unlock()
	defer m.release()

	if len(datasets) == 0 {
		datasets = m.durable.Datasets()
	}
	return m.flush(ctx, TriggerPersist, datasets), nil
}

// flush writes every listed dataset present in the cache to the durable
// store. Datasets are written independently; a failure does not stop the
// others. Any durable failure falls back to the export artifact.
func (m *Manager) flush(ctx context.Context, trigger Trigger, datasets []store.Dataset) *FlushResult {
	result := &FlushResult{Trigger: trigger, Started: m.now()}
	m.emit(Event{Kind: EventFlushStarted, Trigger: trigger, At: result.Started})

	var (
		errs          []error
		durableFailed bool
	)
	for _, d := range datasets {
		dr := DatasetResult{Dataset: d}

		text, err := cache.Dataset(m.cache, d)
		switch {
		case errors.Is(err, store.ErrAbsent):
			dr.Absent = true
		case err != nil:
			dr.Err = fmt.Errorf("failed to read %s from cache: %w", d, err)
		default:
			rec := db.Record{ID: store.CurrentRecordID, Data: text, Timestamp: m.now().UnixMilli()}
			if err := m.durable.PutRecord(ctx, d, rec); err != nil {
				dr.Err = fmt.Errorf("failed to write %s: %w", d, err)
				durableFailed = true
			} else {
				dr.Written = true
				dr.Bytes = len(text)
			}
		}

		if dr.Err != nil {
			m.logger.Printf("Warning: %v", dr.Err)
			errs = append(errs, dr.Err)
		}
		result.Datasets = append(result.Datasets, dr)
	}
	result.Err = errors.Join(errs...)

	if durableFailed {
		result.BackupPath = m.fallback(ctx)
	}

	result.Finished = m.now()
	if result.Err != nil {
		m.logger.Printf("Flush (%s) finished with errors: %d of %d datasets written",
			trigger, result.WrittenCount(), len(datasets))
	} else {
		m.logger.Printf("Flush (%s) complete: %d datasets written", trigger, result.WrittenCount())
	}
	m.emit(Event{Kind: EventFlushFinished, Trigger: trigger, At: result.Finished, Result: result})
	return result
}

// fallback writes the export artifact. Its own failure is logged only.
func (m *Manager) fallback(ctx context.Context) string {
	if m.exporter == nil {
		m.logger.Printf("Warning: durable store unavailable and no exporter configured")
		return ""
	}
	path, err := m.exporter.Export(ctx)
	if err != nil {
		m.logger.Printf("Error: fallback export failed: %v", err)
		return ""
	}
	m.logger.Printf("Durable store unavailable, progress exported to %s", path)
	m.emit(Event{Kind: EventFallback, Path: path})
	return path
}
