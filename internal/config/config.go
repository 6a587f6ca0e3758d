// Package config loads freshstart configuration.
//
// Values are layered: built-in defaults, then config.toml in the home
// directory (or the file named with --config), then FRESHSTART_*
// environment variables (a .env file is loaded first), then command-line
// flags bound by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// FRESHSTART_SYNC_COOLDOWN=2s.
const EnvPrefix = "FRESHSTART"

// FileName is the config file looked up in the home directory.
const FileName = "config.toml"

// Config is the resolved configuration.
type Config struct {
	Home      string
	Sync      SyncConfig
	Cache     CacheConfig
	Durable   DurableConfig
	Progress  ProgressConfig
	Dashboard DashboardConfig
	Log       LogConfig
	Backup    BackupConfig
}

type SyncConfig struct {
	Cooldown    time.Duration
	BlockedWait time.Duration
	Interval    time.Duration // periodic daemon flush; 0 disables it
	Debounce    time.Duration
}

type CacheConfig struct {
	QuotaBytes int
}

type DurableConfig struct {
	Version int
}

type ProgressConfig struct {
	PerDayRate  int
	SessionSize int
	Items       int
	DurationCap time.Duration
}

type DashboardConfig struct {
	Port int
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File       string // relative paths resolve against Home
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type BackupConfig struct {
	Dir string // relative paths resolve against Home
}

// DefaultHome returns ~/.freshstart, or .freshstart when the user home
// cannot be determined.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".freshstart"
	}
	return filepath.Join(home, ".freshstart")
}

// defaults maps every key to its default value.
func defaults() map[string]any {
	return map[string]any{
		"home":                  DefaultHome(),
		"sync.cooldown":         time.Second,
		"sync.blocked_wait":     time.Second,
		"sync.interval":         time.Duration(0),
		"sync.debounce":         250 * time.Millisecond,
		"cache.quota_bytes":     5 << 20,
		"durable.version":       2,
		"progress.per_day_rate": 25,
		"progress.session_size": 10,
		"progress.items":        3000,
		"progress.duration_cap": 60 * time.Second,
		"dashboard.port":        8080,
		"log.file":              filepath.Join("logs", "freshstart.log"),
		"log.max_size_mb":       10,
		"log.max_backups":       3,
		"log.max_age_days":      28,
		"log.compress":          false,
		"backup.dir":            "backups",
	}
}

// NewViper returns a viper instance carrying the defaults and the
// environment binding. Callers bind flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. configFile names an explicit config
// file, which must exist; when empty, config.toml in the home directory is
// read if present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	loadDotEnv(v.GetString("home"))

	v.SetConfigType("toml")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		path := filepath.Join(v.GetString("home"), FileName)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{
		Home: v.GetString("home"),
		Sync: SyncConfig{
			Cooldown:    v.GetDuration("sync.cooldown"),
			BlockedWait: v.GetDuration("sync.blocked_wait"),
			Interval:    v.GetDuration("sync.interval"),
			Debounce:    v.GetDuration("sync.debounce"),
		},
		Cache:   CacheConfig{QuotaBytes: v.GetInt("cache.quota_bytes")},
		Durable: DurableConfig{Version: v.GetInt("durable.version")},
		Progress: ProgressConfig{
			PerDayRate:  v.GetInt("progress.per_day_rate"),
			SessionSize: v.GetInt("progress.session_size"),
			Items:       v.GetInt("progress.items"),
			DurationCap: v.GetDuration("progress.duration_cap"),
		},
		Dashboard: DashboardConfig{Port: v.GetInt("dashboard.port")},
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
		Backup: BackupConfig{Dir: v.GetString("backup.dir")},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads .env from the working directory and the home
// directory. Variables already set in the environment win.
func loadDotEnv(home string) {
	for _, path := range []string{".env", filepath.Join(home, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Home == "" {
		errs = append(errs, errors.New("home must not be empty"))
	}
	if c.Sync.Cooldown < 0 || c.Sync.BlockedWait < 0 || c.Sync.Interval < 0 || c.Sync.Debounce < 0 {
		errs = append(errs, errors.New("sync durations must not be negative"))
	}
	if c.Cache.QuotaBytes <= 0 {
		errs = append(errs, fmt.Errorf("cache.quota_bytes must be positive, got %d", c.Cache.QuotaBytes))
	}
	if c.Durable.Version < 1 {
		errs = append(errs, fmt.Errorf("durable.version must be at least 1, got %d", c.Durable.Version))
	}
	if c.Progress.PerDayRate <= 0 || c.Progress.SessionSize <= 0 || c.Progress.Items <= 0 {
		errs = append(errs, errors.New("progress rates and sizes must be positive"))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port))
	}
	return errors.Join(errs...)
}

// CacheDir is the fast cache directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.Home, "cache")
}

// DatabasePath is the durable store file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Home, "freshstart.db")
}

// LogPath is the rotating log file.
func (c *Config) LogPath() string {
	return c.resolve(c.Log.File)
}

// BackupDir is where fallback exports are written.
func (c *Config) BackupDir() string {
	return c.resolve(c.Backup.Dir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Home, p)
}

// file is the on-disk layout written by WriteFile. Durations are written
// as strings ("1s") so the file stays readable.
type file struct {
	Sync struct {
		Cooldown    string `toml:"cooldown"`
		BlockedWait string `toml:"blocked_wait"`
		Interval    string `toml:"interval"`
		Debounce    string `toml:"debounce"`
	} `toml:"sync"`
	Cache struct {
		QuotaBytes int `toml:"quota_bytes"`
	} `toml:"cache"`
	Durable struct {
		Version int `toml:"version"`
	} `toml:"durable"`
	Progress struct {
		PerDayRate  int    `toml:"per_day_rate"`
		SessionSize int    `toml:"session_size"`
		Items       int    `toml:"items"`
		DurationCap string `toml:"duration_cap"`
	} `toml:"progress"`
	Dashboard struct {
		Port int `toml:"port"`
	} `toml:"dashboard"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
		Compress   bool   `toml:"compress"`
	} `toml:"log"`
	Backup struct {
		Dir string `toml:"dir"`
	} `toml:"backup"`
}

// WriteFile writes c as TOML. An existing file is kept unless overwrite
// is set.
func (c *Config) WriteFile(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	var f file
	f.Sync.Cooldown = c.Sync.Cooldown.String()
	f.Sync.BlockedWait = c.Sync.BlockedWait.String()
	f.Sync.Interval = c.Sync.Interval.String()
	f.Sync.Debounce = c.Sync.Debounce.String()
	f.Cache.QuotaBytes = c.Cache.QuotaBytes
	f.Durable.Version = c.Durable.Version
	f.Progress.PerDayRate = c.Progress.PerDayRate
	f.Progress.SessionSize = c.Progress.SessionSize
	f.Progress.Items = c.Progress.Items
	f.Progress.DurationCap = c.Progress.DurationCap.String()
	f.Dashboard.Port = c.Dashboard.Port
	f.Log.File = c.Log.File
	f.Log.MaxSizeMB = c.Log.MaxSizeMB
	f.Log.MaxBackups = c.Log.MaxBackups
	f.Log.MaxAgeDays = c.Log.MaxAgeDays
	f.Log.Compress = c.Log.Compress
	f.Backup.Dir = c.Backup.Dir

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer out.Close()

	fmt.Fprintln(out, "# freshstart configuration")
	fmt.Fprintf(out, "# Environment variables %s_<SECTION>_<KEY> override these values.\n\n", EnvPrefix)
	if err := toml.NewEncoder(out).Encode(f); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return out.Close()
}
