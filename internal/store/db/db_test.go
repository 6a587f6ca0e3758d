package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/freshstart/freshstart/internal/store"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "durable.db")
}

// TestOpenConnection_CreatesCollections tests that every collection of
// the requested version exists after open
func TestOpenConnection_CreatesCollections(t *testing.T) {
	ctx := context.Background()
	s := New(testDBPath(t), 0)

	c, err := s.OpenConnection(ctx)
	if err != nil {
		t.Fatalf("OpenConnection() failed: %v", err)
	}
	defer c.Close()

	got, err := c.Collections(ctx)
	if err != nil {
		t.Fatalf("Collections() failed: %v", err)
	}
	want := []store.Dataset{store.Curriculum, store.Events, store.Improves, store.Settings, store.UserData}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Collections() = %v, want %v", got, want)
	}

	v, err := c.Version(ctx)
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if v != LatestVersion {
		t.Errorf("Version() = %d, want %d", v, LatestVersion)
	}
}

// TestOpenConnection_Upgrade tests that an upgrade adds collections
// without touching existing records
func TestOpenConnection_Upgrade(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	v1 := New(path, 1)
	rec := Record{ID: store.CurrentRecordID, Data: "ID\tNRD\tLEVEL\n1\t\t0\n", Timestamp: 42}
	if err := v1.PutRecord(ctx, store.UserData, rec); err != nil {
		t.Fatalf("PutRecord() failed: %v", err)
	}
	if err := v1.PutRecord(ctx, store.Settings, rec); !errors.Is(err, store.ErrUnknownDataset) {
		t.Errorf("PutRecord(settings) at v1 error = %v, want ErrUnknownDataset", err)
	}

	v2 := New(path, 2)
	got, ok, err := v2.GetRecord(ctx, store.UserData, store.CurrentRecordID)
	if err != nil || !ok {
		t.Fatalf("GetRecord() = %v, %v", ok, err)
	}
	if got != rec {
		t.Errorf("GetRecord() = %+v, want %+v", got, rec)
	}
	if err := v2.PutRecord(ctx, store.Settings, rec); err != nil {
		t.Errorf("PutRecord(settings) at v2 failed: %v", err)
	}

	// Reopening at the older version is refused
	if _, err := v1.OpenConnection(ctx); !errors.Is(err, store.ErrVersion) {
		t.Errorf("OpenConnection() at v1 after upgrade error = %v, want ErrVersion", err)
	}
}

// TestPutRecord_Overwrites tests that the single record is replaced
func TestPutRecord_Overwrites(t *testing.T) {
	ctx := context.Background()
	s := New(testDBPath(t), 0)

	for i, data := range []string{"ID\n1\n", "ID\n2\n"} {
		rec := Record{ID: store.CurrentRecordID, Data: data, Timestamp: int64(i)}
		if err := s.PutRecord(ctx, store.Improves, rec); err != nil {
			t.Fatalf("PutRecord() failed: %v", err)
		}
	}

	c, err := s.OpenConnection(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	n, err := c.Count(ctx, store.Improves)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	rec, _, _ := c.Get(ctx, store.Improves, store.CurrentRecordID)
	if rec.Data != "ID\n2\n" || rec.Timestamp != 1 {
		t.Errorf("Get() = %+v, want last write", rec)
	}
}

// TestGetRecord_Missing tests that a missing record is not an error
func TestGetRecord_Missing(t *testing.T) {
	s := New(testDBPath(t), 0)
	_, ok, err := s.GetRecord(context.Background(), store.Events, store.CurrentRecordID)
	if err != nil {
		t.Fatalf("GetRecord() failed: %v", err)
	}
	if ok {
		t.Error("GetRecord() found a record in a new database")
	}
}

// TestDeleteDatabase_Blocked tests that deletion waits for open connections
func TestDeleteDatabase_Blocked(t *testing.T) {
	ctx := context.Background()
	s := New(testDBPath(t), 0)

	c, err := s.OpenConnection(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.OpenCount() != 1 {
		t.Errorf("OpenCount() = %d, want 1", s.OpenCount())
	}

	if err := s.DeleteDatabase(ctx); !errors.Is(err, store.ErrBlocked) {
		t.Errorf("DeleteDatabase() with open connection error = %v, want ErrBlocked", err)
	}
	if !s.Exists() {
		t.Error("blocked DeleteDatabase() removed the file")
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if s.OpenCount() != 0 {
		t.Errorf("OpenCount() after Close() = %d, want 0", s.OpenCount())
	}

	if err := s.DeleteDatabase(ctx); err != nil {
		t.Fatalf("DeleteDatabase() failed: %v", err)
	}
	if s.Exists() {
		t.Error("database file still exists after DeleteDatabase()")
	}
	if _, err := os.Stat(s.Path() + "-wal"); !os.IsNotExist(err) {
		t.Errorf("WAL file still exists: %v", err)
	}
}

// TestNonEmpty tests residual data detection used by wipe verification
func TestNonEmpty(t *testing.T) {
	ctx := context.Background()
	s := New(testDBPath(t), 0)

	got, err := s.NonEmpty(ctx)
	if err != nil || got != nil {
		t.Fatalf("NonEmpty() on missing file = %v, %v", got, err)
	}

	rec := Record{ID: store.CurrentRecordID, Data: "x", Timestamp: 1}
	for _, d := range []store.Dataset{store.Events, store.UserData} {
		if err := s.PutRecord(ctx, d, rec); err != nil {
			t.Fatal(err)
		}
	}
	got, err = s.NonEmpty(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []store.Dataset{store.Events, store.UserData}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NonEmpty() = %v, want %v", got, want)
	}

	if err := s.DeleteCollection(ctx, store.Events); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := snap[store.Events]; ok {
		t.Error("Snapshot() still holds events after DeleteCollection()")
	}
	if snap[store.UserData].Data != "x" {
		t.Errorf("Snapshot()[userData] = %+v", snap[store.UserData])
	}
}
