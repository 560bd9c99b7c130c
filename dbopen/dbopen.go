// Package dbopen opens the SQLite database behind the feedcanon registry.
//
// Pragmas travel in the modernc.org/sqlite DSN (_pragma=name(value)), so the
// driver applies them to every connection the pool opens, not only the first:
//
//	foreign_keys = ON       alias rows cascade with their feed
//	journal_mode = WAL      readers (alias fast path) never block the writer
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// Write transactions start with BEGIN IMMEDIATE (_txlock=immediate): Save reads
// then writes, and a deferred transaction upgrading its lock fails with
// SQLITE_BUSY without waiting on busy_timeout.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("feedcanon.db", dbopen.WithMkdirAll(), dbopen.WithSchema(registry.Schema))
//
// In tests:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const driver = "sqlite"

var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(10000)",
	"synchronous(NORMAL)",
}

type config struct {
	mkdirAll bool
	schemas  []string
	maxConns int
}

// Option customises Open behaviour.
type Option func(*config)

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues inline SQL to execute once the database is open.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// WithMaxOpenConns caps the connection pool. 0 leaves database/sql's default.
func WithMaxOpenConns(n int) Option { return func(c *config) { c.maxConns = n } }

// DSN builds the modernc.org/sqlite data source name for path with the
// package pragmas and immediate transaction locking.
func DSN(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path + "?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

// Open opens an SQLite database at path. The caller must blank-import
// modernc.org/sqlite, which registers the "sqlite" driver.
func Open(path string, opts ...Option) (*sql.DB, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driver, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if cfg.maxConns > 0 {
		db.SetMaxOpenConns(cfg.maxConns)
	}
	// Ping opens the first connection, which is where a bad pragma surfaces.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
	}

	for _, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory SQLite database for testing.
// The pool is pinned to one connection: every connection to ":memory:"
// is a separate database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", append(opts, WithMaxOpenConns(1))...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
