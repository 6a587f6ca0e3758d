package daemon

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/freshstart/freshstart/internal/store/cache"
)

func TestCacheWatcher_StartStop(t *testing.T) {
	dir, err := cache.OpenDir(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	cw, err := NewCacheWatcher(dir)
	if err != nil {
		t.Fatalf("NewCacheWatcher() failed: %v", err)
	}
	if cw.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}

	if err := cw.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := cw.Start(); err == nil {
		t.Error("second Start() should fail")
	}
	if !cw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}

	if err := cw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if cw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}
}

func TestCacheWatcher_ConvertEvent(t *testing.T) {
	dir, err := cache.OpenDir(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	cw, err := NewCacheWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer cw.Stop()

	tests := []struct {
		name   string
		event  fsnotify.Event
		want   CacheEvent
		wantOK bool
	}{
		{
			name:   "write",
			event:  fsnotify.Event{Name: dir.FileFor("events"), Op: fsnotify.Write},
			want:   CacheEvent{Key: "events", Op: OpWrite},
			wantOK: true,
		},
		{
			name:   "rename into place",
			event:  fsnotify.Event{Name: dir.FileFor("userData"), Op: fsnotify.Create},
			want:   CacheEvent{Key: "userData", Op: OpWrite},
			wantOK: true,
		},
		{
			name:   "remove",
			event:  fsnotify.Event{Name: dir.FileFor("mode"), Op: fsnotify.Remove},
			want:   CacheEvent{Key: "mode", Op: OpRemove},
			wantOK: true,
		},
		{
			name:  "chmod",
			event: fsnotify.Event{Name: dir.FileFor("mode"), Op: fsnotify.Chmod},
		},
		{
			name:  "temp file",
			event: fsnotify.Event{Name: filepath.Join(dir.Path(), ".userData-123"), Op: fsnotify.Create},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := cw.convertEvent(tt.event)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("convertEvent() = %+v, %v, want %+v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCacheWatcher_Events(t *testing.T) {
	dir, err := cache.OpenDir(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	cw, err := NewCacheWatcher(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := cw.Start(); err != nil {
		t.Fatal(err)
	}
	defer cw.Stop()

	if err := dir.Set("mode", "review"); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-cw.Events():
			if ev.Key == "mode" && ev.Op == OpWrite {
				return
			}
		case <-timeout:
			t.Fatal("no write event for the mode key")
		}
	}
}
