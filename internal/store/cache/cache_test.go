package cache

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/freshstart/freshstart/internal/store"
)

func implementations(t *testing.T, quota int) map[string]Cache {
	t.Helper()
	dir, err := OpenDir(filepath.Join(t.TempDir(), "cache"), quota)
	if err != nil {
		t.Fatalf("OpenDir() error: %v", err)
	}
	return map[string]Cache{
		"memory": NewMemory(quota),
		"dir":    dir,
	}
}

func TestCache_SetGetRemove(t *testing.T) {
	for name, c := range implementations(t, 0) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := c.Get("userData"); err != nil || ok {
				t.Fatalf("Get() on empty cache = %v, %v", ok, err)
			}

			if err := c.Set("userData", "ID\tNRD\tLEVEL\n1\t\t0\n"); err != nil {
				t.Fatalf("Set() error: %v", err)
			}
			if err := c.Set("mode", "review"); err != nil {
				t.Fatalf("Set() error: %v", err)
			}

			v, ok, err := c.Get("userData")
			if err != nil || !ok || v != "ID\tNRD\tLEVEL\n1\t\t0\n" {
				t.Errorf("Get() = %q, %v, %v", v, ok, err)
			}

			keys, err := c.Keys()
			if err != nil {
				t.Fatalf("Keys() error: %v", err)
			}
			if !reflect.DeepEqual(keys, []string{"mode", "userData"}) {
				t.Errorf("Keys() = %v", keys)
			}

			if err := c.Remove("mode"); err != nil {
				t.Fatalf("Remove() error: %v", err)
			}
			if err := c.Remove("mode"); err != nil {
				t.Errorf("Remove() of missing key error: %v", err)
			}
			if _, ok, _ := c.Get("mode"); ok {
				t.Error("Get() after Remove() found the key")
			}

			if err := c.Clear(); err != nil {
				t.Fatalf("Clear() error: %v", err)
			}
			if keys, _ := c.Keys(); len(keys) != 0 {
				t.Errorf("Keys() after Clear() = %v", keys)
			}
		})
	}
}

func TestCache_Quota(t *testing.T) {
	for name, c := range implementations(t, 32) {
		t.Run(name, func(t *testing.T) {
			if err := c.Set("a", strings.Repeat("x", 20)); err != nil {
				t.Fatalf("Set() error: %v", err)
			}
			err := c.Set("b", strings.Repeat("x", 20))
			if !errors.Is(err, store.ErrQuotaExceeded) {
				t.Errorf("Set() over quota error = %v, want ErrQuotaExceeded", err)
			}
			if _, ok, _ := c.Get("b"); ok {
				t.Error("rejected write was stored")
			}

			// Overwriting a key only counts the new value.
			if err := c.Set("a", strings.Repeat("y", 30)); err != nil {
				t.Errorf("Set() overwrite error: %v", err)
			}
		})
	}
}

func TestDataset_Absent(t *testing.T) {
	c := NewMemory(0)
	if _, err := Dataset(c, store.Events); !errors.Is(err, store.ErrAbsent) {
		t.Errorf("Dataset() error = %v, want ErrAbsent", err)
	}
	c.Set("events", "x")
	if v, err := Dataset(c, store.Events); err != nil || v != "x" {
		t.Errorf("Dataset() = %q, %v", v, err)
	}
}

func TestDir_SharedBetweenHandles(t *testing.T) {
	path := t.TempDir()
	a, err := OpenDir(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	b, err := OpenDir(path, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Set("improves", "ID\n3\n"); err != nil {
		t.Fatal(err)
	}
	if v, ok, err := b.Get("improves"); err != nil || !ok || v != "ID\n3\n" {
		t.Errorf("second handle Get() = %q, %v, %v", v, ok, err)
	}
}

func TestDir_KeyFor(t *testing.T) {
	d, err := OpenDir(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}

	if key, ok := d.KeyFor(d.FileFor("mode")); !ok || key != "mode" {
		t.Errorf("KeyFor(FileFor(mode)) = %q, %v", key, ok)
	}
	if _, ok := d.KeyFor(filepath.Join(d.Path(), ".mode-1234")); ok {
		t.Error("KeyFor() accepted a temp file")
	}
	if _, ok := d.KeyFor(filepath.Join(os.TempDir(), "mode.tsv")); ok {
		t.Error("KeyFor() accepted a file outside the cache")
	}
}

func TestDir_RejectsBadKeys(t *testing.T) {
	d, err := OpenDir(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Set("../escape", "x"); err == nil {
		t.Error("Set() accepted a path traversal key")
	}
}
