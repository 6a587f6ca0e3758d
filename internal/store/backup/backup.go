// Package backup writes and reads the fallback export artifact: a JSON
// snapshot of the mutable datasets offered when durable persistence fails.
//
// The artifact is the disaster-recovery path. It is written from the fast
// cache, never from the durable store, because it exists precisely for the
// case where the durable store cannot be written.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// DefaultPrefix names artifacts when no user prefix is set.
const DefaultPrefix = "freshstart"

// Snapshot is the export artifact. Absent datasets are null.
type Snapshot struct {
	ID        string  `json:"id"`
	UserData  *string `json:"userData"`
	Improves  *string `json:"improves"`
	Events    *string `json:"events"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
	Prefix    string  `json:"prefix"`
}

// Dataset returns the text held for d, if any.
func (s *Snapshot) Dataset(d store.Dataset) (string, bool) {
	var p *string
	switch d {
	case store.UserData:
		p = s.UserData
	case store.Improves:
		p = s.Improves
	case store.Events:
		p = s.Events
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

func (s *Snapshot) set(d store.Dataset, text string) {
	switch d {
	case store.UserData:
		s.UserData = &text
	case store.Improves:
		s.Improves = &text
	case store.Events:
		s.Events = &text
	}
}

// Filename returns the artifact name for a prefix and day.
func Filename(prefix string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("freshstart-backup-%s-%s.json", prefix, t.Format("2006-01-02"))
}

// Exporter writes export artifacts from a cache.
type Exporter struct {
	cache  cache.Cache
	dir    string
	logger *log.Logger
	now    func() time.Time
}

// NewExporter returns an exporter writing into dir.
// If logger is nil, a default logger is used.
func NewExporter(c cache.Cache, dir string, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(os.Stderr, "[backup] ", log.LstdFlags)
	}
	return &Exporter{cache: c, dir: dir, logger: logger, now: time.Now}
}

// Dir returns the directory artifacts are written to.
func (e *Exporter) Dir() string {
	return e.dir
}

// Take builds a snapshot of the mutable datasets currently in the cache.
func (e *Exporter) Take() (*Snapshot, error) {
	snap := &Snapshot{
		ID:        ulid.Make().String(),
		Timestamp: e.now().UnixMilli(),
		Prefix:    e.prefix(),
	}
	for _, d := range store.MutableDatasets() {
		text, err := cache.Dataset(e.cache, d)
		if errors.Is(err, store.ErrAbsent) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", d, err)
		}
		snap.set(d, text)
	}
	return snap, nil
}

// Export writes a snapshot to the backup directory and returns its path.
// A same-day artifact for the same prefix is replaced.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	snap, err := e.Take()
	if err != nil {
		return "", err
	}

	path := filepath.Join(e.dir, Filename(snap.Prefix, time.UnixMilli(snap.Timestamp)))
	if err := WriteFile(path, snap); err != nil {
		return "", err
	}

	e.logger.Printf("Wrote backup %s", path)
	return path, nil
}

// prefix resolves the user prefix from the cache key, then the Settings
// dataset. Read failures fall back to DefaultPrefix.
func (e *Exporter) prefix() string {
	if v, ok, err := e.cache.Get(store.PrefixKey); err == nil && ok && v != "" {
		return v
	}
	text, err := cache.Dataset(e.cache, store.Settings)
	if err != nil {
		return DefaultPrefix
	}
	settings, err := tabular.DecodeSettings(text)
	if err != nil {
		e.logger.Printf("Warning: settings unreadable, using default prefix: %v", err)
		return DefaultPrefix
	}
	if p := settings[store.PrefixKey]; p != "" {
		return p
	}
	return DefaultPrefix
}

// WriteFile writes a snapshot atomically via a temp file.
func WriteFile(path string, snap *Snapshot) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	// Marshal with indentation for readability
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ReadFile reads a snapshot.
func ReadFile(path string) (*Snapshot, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid backup %s: %w", filepath.Base(path), err)
	}
	return &snap, nil
}
