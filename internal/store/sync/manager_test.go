package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"reflect"
	gosync "sync"
	"testing"
	"time"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/db"
)

// fakeDurable is an in-memory Durable with failure injection.
type fakeDurable struct {
	mu       gosync.Mutex
	records  map[store.Dataset]db.Record
	puts     int
	failPut  map[store.Dataset]error
	deletes  int
	blocked  int // DeleteDatabase returns ErrBlocked this many times
	residual []store.Dataset
	gate     chan struct{} // when set, PutRecord blocks until closed
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		records: make(map[store.Dataset]db.Record),
		failPut: make(map[store.Dataset]error),
	}
}

func (f *fakeDurable) Datasets() []store.Dataset {
	return db.CollectionsFor(db.LatestVersion)
}

func (f *fakeDurable) PutRecord(ctx context.Context, d store.Dataset, rec db.Record) error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failPut[d]; err != nil {
		return err
	}
	f.puts++
	f.records[d] = rec
	return nil
}

func (f *fakeDurable) GetRecord(ctx context.Context, d store.Dataset, id string) (db.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[d]
	if !ok || rec.ID != id {
		return db.Record{}, false, nil
	}
	return rec, true, nil
}

func (f *fakeDurable) DeleteDatabase(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.blocked > 0 {
		f.blocked--
		return store.ErrBlocked
	}
	f.records = make(map[store.Dataset]db.Record)
	return nil
}

func (f *fakeDurable) NonEmpty(ctx context.Context) ([]store.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]store.Dataset(nil), f.residual...)
	for _, d := range f.Datasets() {
		if _, ok := f.records[d]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDurable) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func (f *fakeDurable) seed(d store.Dataset, data string) {
	f.records[d] = db.Record{ID: store.CurrentRecordID, Data: data, Timestamp: 1}
}

// fakeExporter counts calls.
type fakeExporter struct {
	mu    gosync.Mutex
	calls int
}

func (e *fakeExporter) Export(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return "/tmp/backup.json", nil
}

// clock is a settable time source safe for concurrent reads.
type clock struct {
	mu gosync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager(t *testing.T, c cache.Cache, d Durable, e Exporter) (*Manager, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	m := New(c, d, Options{
		Cooldown:    time.Second,
		BlockedWait: time.Millisecond,
		Exporter:    e,
		Logger:      log.New(io.Discard, "", 0),
		Now:         clk.Now,
	})
	return m, clk
}

func TestRestore_CacheWins(t *testing.T) {
	c := cache.NewMemory(0)
	c.Set("userData", "V1")
	durable := newFakeDurable()
	durable.seed(store.UserData, "V2")
	durable.seed(store.Improves, "ID\n4\n")

	m, _ := newTestManager(t, c, durable, nil)
	result, err := m.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() failed: %v", err)
	}

	if v, _, _ := c.Get("userData"); v != "V1" {
		t.Errorf("userData = %q, want cache value V1 kept", v)
	}
	if v, _, _ := c.Get("improves"); v != "ID\n4\n" {
		t.Errorf("improves = %q, want durable value restored", v)
	}
	if !reflect.DeepEqual(result.Kept, []store.Dataset{store.UserData}) {
		t.Errorf("Kept = %v", result.Kept)
	}
	if !reflect.DeepEqual(result.Restored, []store.Dataset{store.Improves}) {
		t.Errorf("Restored = %v", result.Restored)
	}
	if len(result.Missing) != 3 {
		t.Errorf("Missing = %v, want events, curriculum, settings", result.Missing)
	}
}

func TestSync_FlushIsDirectional(t *testing.T) {
	c := cache.NewMemory(0)
	c.Set("userData", "V1")
	c.Set("settings", "KEY\tVALUE\n")
	durable := newFakeDurable()
	durable.seed(store.UserData, "V2")

	m, _ := newTestManager(t, c, durable, nil)
	result := m.Sync(context.Background())
	if result.Skipped || result.Failed() {
		t.Fatalf("Sync() = %+v", result)
	}

	rec, _, _ := durable.GetRecord(context.Background(), store.UserData, store.CurrentRecordID)
	if rec.Data != "V1" {
		t.Errorf("durable userData = %q, want V1", rec.Data)
	}
	if _, ok, _ := durable.GetRecord(context.Background(), store.Settings, store.CurrentRecordID); ok {
		t.Error("flush wrote settings, which is not a mutable dataset")
	}
	if result.WrittenCount() != 1 {
		t.Errorf("WrittenCount() = %d, want 1", result.WrittenCount())
	}
	for _, dr := range result.Datasets {
		if dr.Dataset != store.UserData && !dr.Absent {
			t.Errorf("%s: Absent = false, want true", dr.Dataset)
		}
	}
}

func TestOnEvent_EveryListenerSeesFlush(t *testing.T) {
	c := cache.NewMemory(0)
	c.Set("userData", "V1")
	m, _ := newTestManager(t, c, newFakeDurable(), nil)

	var first, second []EventKind
	m.OnEvent(func(ev Event) { first = append(first, ev.Kind) })
	m.OnEvent(func(ev Event) { second = append(second, ev.Kind) })

	m.Sync(context.Background())
	m.Sync(context.Background())

	want := []EventKind{EventFlushStarted, EventFlushFinished, EventSkipped}
	if !reflect.DeepEqual(first, want) {
		t.Errorf("first listener saw %v, want %v", first, want)
	}
	if !reflect.DeepEqual(second, want) {
		t.Errorf("second listener saw %v, want %v", second, want)
	}
}

func TestNotify_CooldownGivesSingleWrite(t *testing.T) {
	c := cache.NewMemory(0)
	c.Set("userData", "V1")
	durable := newFakeDurable()

	m, clk := newTestManager(t, c, durable, nil)

	if !m.Notify(TriggerHidden) {
		t.Fatal("first Notify() = false, want true")
	}
	m.Wait()

	clk.Advance(500 * time.Millisecond)
	if m.Notify(TriggerPageChange) {
		t.Error("Notify() within cooldown = true, want false")
	}
	m.Wait()

	if got := durable.putCount(); got != 1 {
		t.Errorf("durable writes = %d, want 1", got)
	}

	clk.Advance(time.Second)
	if !m.Notify(TriggerPageChange) {
		t.Error("Notify() after cooldown = false, want true")
	}
	m.Wait()
	if got := durable.putCount(); got != 2 {
		t.Errorf("durable writes = %d, want 2", got)
	}
}

func TestNotify_InFlightGuard(t *testing.T) {
	c := cache.NewMemory(0)
	c.Set("events", "x")
	durable := newFakeDurable()
	durable.gate = make(chan struct{})

	m, clk := newTestManager(t, c, durable, nil)
	if !m.Notify(TriggerModeChange) {
		t.Fatal("Notify() = false, want true")
	}

	// Past the cooldown, but the first flush is still running.
	clk.Advance(time.Hour)
	if m.Notify(TriggerModeChange) {
		t.Error("Notify() during flush = true, want false")
	}
	if m.State() != Syncing {
		t.Errorf("State() = %s, want syncing", m.State())
	}
	if _, err := m.Persist(context.Background()); !errors.Is(err, store.ErrSyncInProgress) {
		t.Errorf("Persist() during flush error = %v, want ErrSyncInProgress", err)
	}

	close(durable.gate)
	m.Wait()
	if m.State() != Idle {
		t.Errorf("State() after Wait() = %s, want idle", m.State())
	}
	if got := durable.putCount(); got != 1 {
		t.Errorf("durable writes = %d, want 1", got)
	}
}

func TestSync_FallbackExport(t *testing.T) {
	c := cache.NewMemory(0)
	c.Set("userData", "U")
	c.Set("improves", "I")
	c.Set("events", "E")
	durable := newFakeDurable()
	durable.failPut[store.Improves] = store.ErrBackendUnavailable
	exporter := &fakeExporter{}

	m, _ := newTestManager(t, c, durable, exporter)

	var fallbacks int
	m.OnEvent(func(ev Event) {
		if ev.Kind == EventFallback {
			fallbacks++
		}
	})

	result := m.Sync(context.Background())
	if !result.Failed() {
		t.Fatal("Sync() did not report the failed dataset")
	}
	if !errors.Is(result.Err, store.ErrBackendUnavailable) {
		t.Errorf("Err = %v, want ErrBackendUnavailable", result.Err)
	}
	if result.WrittenCount() != 2 {
		t.Errorf("WrittenCount() = %d, want 2 (failure must not stop other datasets)", result.WrittenCount())
	}
	if exporter.calls != 1 {
		t.Errorf("exporter calls = %d, want 1", exporter.calls)
	}
	if result.BackupPath != "/tmp/backup.json" {
		t.Errorf("BackupPath = %q", result.BackupPath)
	}
	if fallbacks != 1 {
		t.Errorf("fallback events = %d, want 1", fallbacks)
	}
}

func TestSync_SkippedWithinCooldown(t *testing.T) {
	m, _ := newTestManager(t, cache.NewMemory(0), newFakeDurable(), nil)
	if r := m.Sync(context.Background()); r.Skipped {
		t.Fatal("first Sync() skipped")
	}
	if r := m.Sync(context.Background()); !r.Skipped {
		t.Error("second Sync() within cooldown was not skipped")
	}
}

func TestPersist_IgnoresCooldown(t *testing.T) {
	c := cache.NewMemory(0)
	c.Set("settings", "KEY\tVALUE\nnickname\tbob\n")
	c.Set("curriculum", "ID\n")
	durable := newFakeDurable()

	m, _ := newTestManager(t, c, durable, nil)
	m.Sync(context.Background())

	result, err := m.Persist(context.Background(), store.Settings)
	if err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}
	if result.WrittenCount() != 1 {
		t.Errorf("WrittenCount() = %d, want 1", result.WrittenCount())
	}
	if _, ok, _ := durable.GetRecord(context.Background(), store.Settings, store.CurrentRecordID); !ok {
		t.Error("settings not persisted")
	}

	result, err = m.Persist(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.WrittenCount() != 2 {
		t.Errorf("Persist() of all collections wrote %d, want 2", result.WrittenCount())
	}
}

func TestClearAllData(t *testing.T) {
	c := cache.NewMemory(0)
	for _, k := range []string{"userData", "improves", "events", "mode", "prefix"} {
		c.Set(k, "x")
	}
	durable := newFakeDurable()
	for _, d := range store.AllDatasets() {
		durable.seed(d, "x")
	}

	m, _ := newTestManager(t, c, durable, nil)
	if err := m.ClearAllData(context.Background()); err != nil {
		t.Fatalf("ClearAllData() failed: %v", err)
	}

	for _, d := range store.AllDatasets() {
		if _, ok, _ := c.Get(d.String()); ok {
			t.Errorf("cache still holds %s", d)
		}
		if _, ok, _ := durable.GetRecord(context.Background(), d, store.CurrentRecordID); ok {
			t.Errorf("durable store still holds %s", d)
		}
	}
}

func TestClearAllData_BlockedRetries(t *testing.T) {
	durable := newFakeDurable()
	durable.seed(store.UserData, "x")
	durable.blocked = 1

	m, _ := newTestManager(t, cache.NewMemory(0), durable, nil)
	if err := m.ClearAllData(context.Background()); err != nil {
		t.Fatalf("ClearAllData() failed: %v", err)
	}
	if durable.deletes != 2 {
		t.Errorf("DeleteDatabase calls = %d, want 2", durable.deletes)
	}
}

func TestClearAllData_VerificationFailure(t *testing.T) {
	durable := newFakeDurable()
	durable.seed(store.Events, "x")
	durable.blocked = 2 // stays blocked after the retry

	m, _ := newTestManager(t, cache.NewMemory(0), durable, nil)
	err := m.ClearAllData(context.Background())
	if !errors.Is(err, store.ErrWipeVerification) {
		t.Fatalf("ClearAllData() error = %v, want ErrWipeVerification", err)
	}
	var wve *store.WipeVerificationError
	if !errors.As(err, &wve) {
		t.Fatalf("error = %T, want *WipeVerificationError", err)
	}
	if !reflect.DeepEqual(wve.Collections, []store.Dataset{store.Events}) {
		t.Errorf("Collections = %v", wve.Collections)
	}
	if !store.IsFatal(err) {
		t.Error("IsFatal() = false for a failed wipe")
	}
}

func TestIsNewUser(t *testing.T) {
	c := cache.NewMemory(0)
	durable := newFakeDurable()
	m, _ := newTestManager(t, c, durable, nil)

	if isNew, err := m.IsNewUser(context.Background()); err != nil || !isNew {
		t.Errorf("IsNewUser() on empty backends = %v, %v", isNew, err)
	}
	durable.seed(store.UserData, "x")
	if isNew, _ := m.IsNewUser(context.Background()); isNew {
		t.Error("IsNewUser() = true with durable progress")
	}
}

// TestManager_RealBackends runs a session round trip against a directory
// cache and a SQLite durable store.
func TestManager_RealBackends(t *testing.T) {
	ctx := context.Background()
	home := t.TempDir()

	c, err := cache.OpenDir(filepath.Join(home, "cache"), 0)
	if err != nil {
		t.Fatal(err)
	}
	durable := db.New(filepath.Join(home, "durable.db"), 0)

	m, _ := newTestManager(t, c, durable, nil)
	c.Set("userData", "ID\tNRD\tLEVEL\n1\t3\t1\n")
	if r := m.Sync(ctx); r.Failed() {
		t.Fatalf("Sync() failed: %v", r.Err)
	}

	// A new session with an empty cache restores from the durable store.
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := c.Get("userData"); v != "ID\tNRD\tLEVEL\n1\t3\t1\n" {
		t.Errorf("restored userData = %q", v)
	}

	status, err := m.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range status {
		if st.Dataset == store.UserData && !st.InSync {
			t.Errorf("userData status = %+v, want in sync", st)
		}
	}

	if err := m.ClearAllData(ctx); err != nil {
		t.Fatalf("ClearAllData() failed: %v", err)
	}
	for _, d := range durable.Datasets() {
		if _, ok, _ := c.Get(d.String()); ok {
			t.Errorf("cache holds %s after wipe", d)
		}
		if _, ok, err := durable.GetRecord(ctx, d, store.CurrentRecordID); err != nil || ok {
			t.Errorf("durable %s after wipe: %v, %v", d, ok, err)
		}
	}
}
