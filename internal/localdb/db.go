// Package localdb owns the single sqlite file backing the cache (§6
// "Persistent store layout"). It is intentionally thin: opening the file,
// setting pragmas, and serialising writers per §5's "process-wide writer
// serialisation" model. Schema derivation, record storage and metadata
// caches are built on top of it in sibling packages — this package knows
// nothing about tables, fields or TTLs.
//
// Grounded on the teacher's internal/localdb/db.go, trimmed of the
// generic JSON key/value store (our tables have typed, per-field columns,
// not opaque blobs) and extended with the write-serialisation and
// transaction helpers the dynamic schema layer needs.
package localdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps the single sqlite file the cache engine persists to. Reads may
// run concurrently; writes are serialised through mu so that a concurrent
// reader can never observe a half-written replace_all (§5).
type DB struct {
	sql *sql.DB
	mu  sync.Mutex
}

// Open creates (if needed) the parent directory and opens the sqlite file
// at path, enabling WAL mode so readers don't block behind the writer.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return &DB{sql: sqlDB}, nil
}

// Close releases the underlying sqlite handle.
func (d *DB) Close() error { return d.sql.Close() }

// Raw exposes the underlying *sql.DB for read paths (SELECT) that don't
// need write serialisation.
func (d *DB) Raw() *sql.DB { return d.sql }

// Exec runs a single non-transactional statement (DDL, single-row
// mutation) under the writer mutex.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sql.ExecContext(ctx, query, args...)
}

// WithTx runs fn inside a single transaction under the writer mutex,
// committing on success and rolling back on any error or panic. This is
// the atomicity primitive §4.3's replace_all relies on: the delete and the
// inserts of a bulk replace happen inside one WithTx call.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Query runs a read query against the underlying handle. Reads are not
// serialised: WAL mode lets them proceed concurrently with a writer.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row read query.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sql.QueryRowContext(ctx, query, args...)
}
