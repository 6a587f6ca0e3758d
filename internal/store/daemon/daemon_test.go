package daemon

import (
	"context"
	"io"
	"log"
	"path/filepath"
	gosync "sync"
	"syscall"
	"testing"
	"time"

	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/sync"
)

// fakeNotifier records triggers and accepts them while accept is true.
type fakeNotifier struct {
	mu       gosync.Mutex
	triggers []sync.Trigger
	refuse   bool
	waits    int
}

func (f *fakeNotifier) Notify(trigger sync.Trigger) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuse {
		return false
	}
	f.triggers = append(f.triggers, trigger)
	return true
}

func (f *fakeNotifier) WaitContext(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return nil
}

func (f *fakeNotifier) got() []sync.Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sync.Trigger(nil), f.triggers...)
}

func (f *fakeNotifier) setRefuse(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refuse = v
}

func testConfig() *Config {
	return &Config{
		DebounceInterval: 20 * time.Millisecond,
		ShutdownGrace:    time.Second,
		Logger:           log.New(io.Discard, "", 0),
	}
}

func setupDaemon(t *testing.T) (*Daemon, *fakeNotifier, *cache.Dir) {
	t.Helper()
	dir, err := cache.OpenDir(filepath.Join(t.TempDir(), "cache"), 0)
	if err != nil {
		t.Fatalf("OpenDir() failed: %v", err)
	}
	n := &fakeNotifier{}
	d, err := New(n, dir, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return d, n, dir
}

func TestNew(t *testing.T) {
	dir, err := cache.OpenDir(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		manager Notifier
		dir     CacheDir
		wantErr bool
	}{
		{name: "valid", manager: &fakeNotifier{}, dir: dir},
		{name: "nil manager", dir: dir, wantErr: true},
		{name: "nil dir", manager: &fakeNotifier{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.manager, tt.dir, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d != nil {
				d.watcher.Stop()
			}
		})
	}
}

func TestHandleCacheEvent(t *testing.T) {
	d, n, _ := setupDaemon(t)
	defer d.watcher.Stop()

	d.handleCacheEvent(CacheEvent{Key: "mode", Op: OpWrite})
	d.handleCacheEvent(CacheEvent{Key: "userData", Op: OpWrite})
	d.handleCacheEvent(CacheEvent{Key: "events", Op: OpRemove})
	d.handleCacheEvent(CacheEvent{Key: "prefix", Op: OpWrite})

	got := n.got()
	if len(got) != 1 || got[0] != sync.TriggerModeChange {
		t.Errorf("triggers = %v, want [mode-change]", got)
	}
	if d.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", d.Pending())
	}
}

func TestProcessPendingChanges_Debounce(t *testing.T) {
	d, n, _ := setupDaemon(t)
	defer d.watcher.Stop()

	base := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	now := base
	d.now = func() time.Time { return now }

	d.queueChange("userData")
	d.queueChange("events")

	now = base.Add(10 * time.Millisecond)
	if d.processPendingChanges() {
		t.Error("flushed before the debounce interval elapsed")
	}

	// The manager refuses: changes stay queued
	n.setRefuse(true)
	now = base.Add(30 * time.Millisecond)
	if d.processPendingChanges() {
		t.Error("processPendingChanges() = true with a refusing manager")
	}
	if d.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", d.Pending())
	}

	n.setRefuse(false)
	if !d.processPendingChanges() {
		t.Fatal("processPendingChanges() = false, want true")
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
	got := n.got()
	if len(got) != 1 || got[0] != sync.TriggerPageChange {
		t.Errorf("triggers = %v, want a single page-change", got)
	}
}

func TestHandleSignal(t *testing.T) {
	d, n, _ := setupDaemon(t)
	defer d.watcher.Stop()

	if d.HandleSignal(syscall.SIGUSR1) {
		t.Error("SIGUSR1 requested a stop")
	}
	if !d.HandleSignal(syscall.SIGTERM) {
		t.Error("SIGTERM did not request a stop")
	}

	got := n.got()
	want := []sync.Trigger{sync.TriggerHidden, sync.TriggerUnload}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("triggers = %v, want %v", got, want)
	}
	if n.waits != 1 {
		t.Errorf("unload waited %d times, want 1", n.waits)
	}
}

// TestDaemon_WatchesCache runs the daemon against a real cache directory.
func TestDaemon_WatchesCache(t *testing.T) {
	d, n, dir := setupDaemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Wait for the watcher to come up
	deadline := time.Now().Add(2 * time.Second)
	for !d.watcher.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := dir.Set("userData", "ID\tNRD\tLEVEL\n1\t\t0\n"); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hasTrigger(n.got(), sync.TriggerPageChange) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !hasTrigger(n.got(), sync.TriggerPageChange) {
		t.Errorf("no page-change trigger after a cache write, got %v", n.got())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
	if !hasTrigger(n.got(), sync.TriggerUnload) {
		t.Error("no unload trigger on shutdown")
	}
}

func hasTrigger(got []sync.Trigger, want sync.Trigger) bool {
	for _, tr := range got {
		if tr == want {
			return true
		}
	}
	return false
}
