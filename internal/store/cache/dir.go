package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/freshstart/freshstart/internal/store"
)

// fileExt is the extension of every cache entry on disk.
const fileExt = ".tsv"

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Dir is a cache kept as one file per key inside a directory.
//
// Writes go to a temp file that is renamed over the entry, so a reader
// never sees a partial value.
type Dir struct {
	path  string
	quota int
	mu    sync.Mutex // serializes writers within this process
}

// OpenDir opens (creating if needed) a directory cache. A quota <= 0
// selects DefaultQuota.
func OpenDir(path string, quota int) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Dir{path: path, quota: quota}, nil
}

// Path returns the cache directory.
func (d *Dir) Path() string {
	return d.path
}

// FileFor returns the file backing key. The daemon watches these paths.
func (d *Dir) FileFor(key string) string {
	return filepath.Join(d.path, key+fileExt)
}

// KeyFor returns the key backed by a file path, or false when the path is
// not a cache entry.
func (d *Dir) KeyFor(path string) (string, bool) {
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(d.path) {
		return "", false
	}
	name := filepath.Base(path)
	if !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	key := strings.TrimSuffix(name, fileExt)
	if !validKey.MatchString(key) {
		return "", false
	}
	return key, true
}

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	return nil
}

func (d *Dir) Get(key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(d.FileFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}
	return string(data), true, nil
}

func (d *Dir) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	used, err := d.usage(key)
	if err != nil {
		return err
	}
	if used+len(key)+len(value) > d.quota {
		return fmt.Errorf("%w: writing %s needs %d bytes, %d of %d in use",
			store.ErrQuotaExceeded, key, len(key)+len(value), used, d.quota)
	}

	tmp, err := os.CreateTemp(d.path, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	if err := os.Rename(tmpName, d.FileFor(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache key %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Remove(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	err := os.Remove(d.FileFor(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache key %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Clear() error {
	keys, err := d.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := d.Remove(k); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dir) Keys() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if key, ok := d.KeyFor(filepath.Join(d.path, e.Name())); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// usage returns the bytes held by every key except skip.
func (d *Dir) usage(skip string) (int, error) {
	keys, err := d.Keys()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, k := range keys {
		if k == skip {
			continue
		}
		info, err := os.Stat(d.FileFor(k))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to stat cache key %s: %w", k, err)
		}
		total += len(k) + int(info.Size())
	}
	return total, nil
}
