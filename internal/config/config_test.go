package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	v := NewViper()
	v.Set("home", home)

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Cooldown != time.Second || cfg.Sync.Debounce != 250*time.Millisecond {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Cache.QuotaBytes != 5<<20 || cfg.Durable.Version != 2 {
		t.Errorf("cache = %+v, durable = %+v", cfg.Cache, cfg.Durable)
	}
	if cfg.Progress.PerDayRate != 25 || cfg.Progress.DurationCap != time.Minute {
		t.Errorf("progress = %+v", cfg.Progress)
	}
	if cfg.CacheDir() != filepath.Join(home, "cache") {
		t.Errorf("CacheDir() = %s", cfg.CacheDir())
	}
	if cfg.LogPath() != filepath.Join(home, "logs", "freshstart.log") {
		t.Errorf("LogPath() = %s", cfg.LogPath())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	home := t.TempDir()
	content := `
[sync]
cooldown = "3s"
interval = "1m"

[progress]
per_day_rate = 40

[backup]
dir = "/var/backups/fs"
`
	if err := os.WriteFile(filepath.Join(home, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRESHSTART_PROGRESS_SESSION_SIZE", "7")

	v := NewViper()
	v.Set("home", home)
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Cooldown != 3*time.Second || cfg.Sync.Interval != time.Minute {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Progress.PerDayRate != 40 || cfg.Progress.SessionSize != 7 {
		t.Errorf("progress = %+v", cfg.Progress)
	}
	if cfg.BackupDir() != "/var/backups/fs" {
		t.Errorf("BackupDir() = %s", cfg.BackupDir())
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	v := NewViper()
	v.Set("home", t.TempDir())
	if _, err := Load(v, filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}

func TestLoad_Invalid(t *testing.T) {
	v := NewViper()
	v.Set("home", t.TempDir())
	v.Set("cache.quota_bytes", 0)
	_, err := Load(v, "")
	if err == nil || !strings.Contains(err.Error(), "quota_bytes") {
		t.Errorf("Load() error = %v, want quota error", err)
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	home := t.TempDir()
	v := NewViper()
	v.Set("home", home)
	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Sync.Cooldown = 5 * time.Second
	cfg.Dashboard.Port = 9090

	path := filepath.Join(home, FileName)
	if err := cfg.WriteFile(path, false); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := cfg.WriteFile(path, false); err == nil {
		t.Error("second WriteFile() without overwrite error = nil")
	}

	v2 := NewViper()
	v2.Set("home", home)
	got, err := Load(v2, "")
	if err != nil {
		t.Fatalf("Load() after WriteFile error = %v", err)
	}
	if got.Sync.Cooldown != 5*time.Second || got.Dashboard.Port != 9090 {
		t.Errorf("reloaded sync = %+v, port = %d", got.Sync, got.Dashboard.Port)
	}
}
