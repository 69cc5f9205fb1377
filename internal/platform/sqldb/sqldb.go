// Package sqldb opens the SQL databases the ledger can persist to: SQLite
// (modernc.org/sqlite, pure Go) and PostgreSQL (lib/pq).
//
// SQLite connections get production pragmas applied on open:
//
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//
// In tests:
//
//	db := sqldb.OpenMemory(t)
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names registered by the imported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type options struct {
	busyTimeout  int
	maxOpenConns int
	pingTimeout  time.Duration
	mkdirAll     bool
}

// Option customises Open.
type Option func(*options)

// WithBusyTimeout sets SQLite busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithMaxOpenConns caps the pool size.
func WithMaxOpenConns(n int) Option { return func(o *options) { o.maxOpenConns = n } }

// WithMkdirAll creates the parent directory of a SQLite file before opening.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// Open opens driver at dsn, applies SQLite pragmas when relevant and pings.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeout: 10_000, pingTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	if driver == DriverSQLite && o.mkdirAll && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("sqldb: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open %s: %w", driver, err)
	}
	if o.maxOpenConns > 0 {
		db.SetMaxOpenConns(o.maxOpenConns)
	}

	if driver == DriverSQLite {
		if err := applyPragmas(ctx, db, o); err != nil {
			db.Close()
			return nil, err
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqldb: ping %s: %w", driver, err)
	}
	return db, nil
}

// OpenMemory opens an in-memory SQLite database for tests. It pins the pool
// to one connection because every ":memory:" connection is its own database.
func OpenMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), DriverSQLite, ":memory:", WithMaxOpenConns(1))
	if err != nil {
		t.Fatalf("sqldb.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func applyPragmas(ctx context.Context, db *sql.DB, o options) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqldb: %s: %w", p, err)
		}
	}
	return nil
}
