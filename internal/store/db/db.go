// Package db provides the durable store: an embedded SQLite database that
// holds one collection per dataset and survives across sessions.
//
// Architecture:
//   - Database file: <home>/freshstart.db
//   - WAL mode with a busy timeout so the daemon and the CLI can share it
//   - One table per collection: (id TEXT PRIMARY KEY, data TEXT, timestamp INTEGER)
//   - Schema version in PRAGMA user_version, upgraded additively on open
//
// Every collection holds a single record with id "current" whose data is
// the dataset's serialized tabular text. The store is only ever written by
// the sync manager; it is the system of record, while the fast cache is
// the working copy.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/freshstart/freshstart/internal/store"
)

// LatestVersion is the newest schema version this build knows.
const LatestVersion = 2

// migration adds collections at a schema version. Upgrades only ever
// create tables; existing records are never touched.
type migration struct {
	version     int
	collections []store.Dataset
}

var migrations = []migration{
	{version: 1, collections: []store.Dataset{store.UserData, store.Improves, store.Events, store.Curriculum}},
	{version: 2, collections: []store.Dataset{store.Settings}},
}

// CollectionsFor returns the collections defined at a schema version.
func CollectionsFor(version int) []store.Dataset {
	var out []store.Dataset
	for _, m := range migrations {
		if m.version <= version {
			out = append(out, m.collections...)
		}
	}
	return out
}

// Record is the single durable record of a collection.
type Record struct {
	ID        string `db:"id" json:"id"`
	Data      string `db:"data" json:"data"`
	Timestamp int64  `db:"timestamp" json:"timestamp"` // unix milliseconds
}

// Store is a handle on the durable database file. It does not hold a
// connection itself; per-call methods open and close their own, and
// OpenConnection hands one out explicitly.
type Store struct {
	path    string
	version int

	// open counts live connections. DeleteDatabase refuses to run while
	// it is non-zero.
	open atomic.Int32

	// mu serializes schema upgrades within this process.
	mu sync.Mutex
}

// New returns a store for the database at path using the given schema
// version. A version <= 0 selects LatestVersion.
func New(path string, version int) *Store {
	if version <= 0 {
		version = LatestVersion
	}
	return &Store{path: path, version: version}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Version returns the schema version the store opens with.
func (s *Store) Version() int {
	return s.version
}

// Datasets returns the collections defined at the store's version.
func (s *Store) Datasets() []store.Dataset {
	return CollectionsFor(s.version)
}

// OpenCount returns the number of live connections.
func (s *Store) OpenCount() int {
	return int(s.open.Load())
}

// Exists reports whether the database file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Conn is an open connection to the durable database.
// The caller MUST call Close() when done.
type Conn struct {
	db      *sqlx.DB
	store   *Store
	closed  atomic.Bool
	version int
}

// OpenConnection opens the database, creating it if needed, and upgrades
// its schema to the store's version.
//
// Opening with a version older than the one on disk fails with
// store.ErrVersion. Any other failure wraps store.ErrBackendUnavailable.
func (s *Store) OpenConnection(ctx context.Context) (*Conn, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create database directory: %v", store.ErrBackendUnavailable, err)
	}

	conn, err := sqlx.ConnectContext(ctx, "sqlite3", "file:"+s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", store.ErrBackendUnavailable, err)
	}

	// One connection keeps the pragmas below in effect for every statement.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to enable WAL mode: %v", store.ErrBackendUnavailable, err)
	}

	// Set busy timeout to 5 seconds
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to set busy timeout: %v", store.ErrBackendUnavailable, err)
	}

	c := &Conn{db: conn, store: s, version: s.version}
	if err := s.upgrade(ctx, c); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.open.Add(1)
	return c, nil
}

// upgrade brings the on-disk schema up to the store's version.
func (s *Store) upgrade(ctx context.Context, c *Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int
	if err := c.db.GetContext(ctx, &current, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("%w: failed to read schema version: %v", store.ErrBackendUnavailable, err)
	}
	if current > s.version {
		return fmt.Errorf("%w: on disk %d, requested %d", store.ErrVersion, current, s.version)
	}

	// Tables are created with IF NOT EXISTS at every open so a database
	// whose collections were dropped by hand is repaired.
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin upgrade: %v", store.ErrBackendUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range CollectionsFor(s.version) {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`, quote(d))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: failed to create collection %s: %v", store.ErrBackendUnavailable, d, err)
		}
	}
	if current != s.version {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", s.version)); err != nil {
			return fmt.Errorf("%w: failed to set schema version: %v", store.ErrBackendUnavailable, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit upgrade: %v", store.ErrBackendUnavailable, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the connection. Closing twice is a
// no-op.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	defer c.store.open.Add(-1)

	// Checkpoint WAL before closing
	if _, err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Version reads the schema version on disk.
func (c *Conn) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.db.GetContext(ctx, &v, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("%w: failed to read schema version: %v", store.ErrBackendUnavailable, err)
	}
	return v, nil
}

// Put writes rec into a collection in a single transaction, replacing a
// record with the same id.
func (c *Conn) Put(ctx context.Context, d store.Dataset, rec Record) error {
	if err := c.check(d); err != nil {
		return err
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", store.ErrBackendUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data, timestamp) VALUES (:id, :data, :timestamp)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			timestamp = excluded.timestamp
	`, quote(d))
	if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", store.ErrBackendUnavailable, d, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit %s: %v", store.ErrBackendUnavailable, d, err)
	}
	return nil
}

// Get reads a record by id. A missing record returns ok == false.
func (c *Conn) Get(ctx context.Context, d store.Dataset, id string) (Record, bool, error) {
	if err := c.check(d); err != nil {
		return Record{}, false, err
	}

	var rec Record
	query := fmt.Sprintf("SELECT id, data, timestamp FROM %s WHERE id = ?", quote(d))
	err := c.db.GetContext(ctx, &rec, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("%w: failed to read %s: %v", store.ErrBackendUnavailable, d, err)
	}
	return rec, true, nil
}

// Count returns the number of records in a collection.
func (c *Conn) Count(ctx context.Context, d store.Dataset) (int, error) {
	if err := c.check(d); err != nil {
		return 0, err
	}
	var n int
	if err := c.db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(d))); err != nil {
		return 0, fmt.Errorf("%w: failed to count %s: %v", store.ErrBackendUnavailable, d, err)
	}
	return n, nil
}

// Clear removes every record from a collection.
func (c *Conn) Clear(ctx context.Context, d store.Dataset) error {
	if err := c.check(d); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", quote(d))); err != nil {
		return fmt.Errorf("%w: failed to clear %s: %v", store.ErrBackendUnavailable, d, err)
	}
	return nil
}

// Collections lists the collections present in the database file.
func (c *Conn) Collections(ctx context.Context) ([]store.Dataset, error) {
	var names []string
	err := c.db.SelectContext(ctx, &names,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list collections: %v", store.ErrBackendUnavailable, err)
	}

	var out []store.Dataset
	for _, n := range names {
		if d, err := store.ParseDataset(n); err == nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Conn) check(d store.Dataset) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: connection is closed", store.ErrBackendUnavailable)
	}
	for _, known := range CollectionsFor(c.version) {
		if known == d {
			return nil
		}
	}
	return fmt.Errorf("%w: no collection %q at schema version %d", store.ErrUnknownDataset, string(d), c.version)
}

// quote returns a collection name as an SQL identifier. Names come from
// the fixed dataset list, never from user input.
func quote(d store.Dataset) string {
	return `"` + string(d) + `"`
}

// ===== Per-call operations =====

// PutRecord opens a connection, writes rec and closes the connection.
func (s *Store) PutRecord(ctx context.Context, d store.Dataset, rec Record) error {
	c, err := s.OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Put(ctx, d, rec)
}

// GetRecord opens a connection, reads a record and closes the connection.
func (s *Store) GetRecord(ctx context.Context, d store.Dataset, id string) (Record, bool, error) {
	c, err := s.OpenConnection(ctx)
	if err != nil {
		return Record{}, false, err
	}
	defer c.Close()
	return c.Get(ctx, d, id)
}

// DeleteCollection removes every record of a collection.
func (s *Store) DeleteCollection(ctx context.Context, d store.Dataset) error {
	c, err := s.OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Clear(ctx, d)
}

// NonEmpty returns the collections that still hold records. A missing
// database file has none.
func (s *Store) NonEmpty(ctx context.Context) ([]store.Dataset, error) {
	if !s.Exists() {
		return nil, nil
	}
	c, err := s.OpenConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	present, err := c.Collections(ctx)
	if err != nil {
		return nil, err
	}
	var out []store.Dataset
	for _, d := range present {
		if c.check(d) != nil {
			continue
		}
		n, err := c.Count(ctx, d)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Snapshot reads the current record of every collection that has one.
func (s *Store) Snapshot(ctx context.Context) (map[store.Dataset]Record, error) {
	c, err := s.OpenConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	out := make(map[store.Dataset]Record)
	for _, d := range CollectionsFor(s.version) {
		rec, ok, err := c.Get(ctx, d, store.CurrentRecordID)
		if err != nil {
			return nil, err
		}
		if ok {
			out[d] = rec
		}
	}
	return out, nil
}

// DeleteDatabase removes the database file and its WAL companions. It
// fails with store.ErrBlocked while any connection is open.
func (s *Store) DeleteDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := s.open.Load(); n > 0 {
		return fmt.Errorf("%w: %d connection(s) open", store.ErrBlocked, n)
	}

	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: failed to delete %s: %v", store.ErrBackendUnavailable, filepath.Base(p), err)
		}
	}
	return nil
}
