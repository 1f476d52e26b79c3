// Package database implements component B: a single schema-versioned
// SQL store with typed row-to-entity mappers. The driver is
// modernc.org/sqlite (pure Go, no cgo), and row scanning goes through
// jmoiron/sqlx's StructScan so each entity's Row type declares its own
// column mapping via `db:"..."` tags instead of positional Scan calls.
package database

import (
	"context"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pinpox/whitenoise/internal/werrors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	maxOpenConns  = 10
	acquireTimeout = 5 * time.Second
)

// DB wraps a connection pool to the whitenoise sqlite file.
type DB struct {
	conn *sqlx.DB
	log  *log.Logger
}

// Open creates parent directories if needed, opens (or creates) the
// database at path, runs all pending migrations in order, and enables
// WAL journaling, a 5s busy timeout, foreign keys, and recursive
// triggers.
func Open(ctx context.Context, path string, logger *log.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "create database directory")
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=recursive_triggers(1)",
		path,
	)

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, werrors.Wrap(werrors.IO, err, "open database %q", path)
	}
	conn.SetMaxOpenConns(maxOpenConns)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, werrors.Wrap(werrors.IO, err, "ping database")
	}

	db := &DB{conn: conn, log: logger}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// acquire returns a context bounded by the pool acquire timeout (5s),
// used at every call site that performs a DB round-trip.
func (db *DB) acquire(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, acquireTimeout)
}

func (db *DB) migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "read embedded migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if _, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)`); err != nil {
		return werrors.Wrap(werrors.IO, err, "create schema_migrations table")
	}

	for _, name := range names {
		var already int
		if err := db.conn.GetContext(ctx, &already, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, name); err != nil {
			return werrors.Wrap(werrors.IO, err, "check migration %s", name)
		}
		if already > 0 {
			continue
		}

		sqlBytes, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return werrors.Wrap(werrors.IO, err, "read migration %s", name)
		}

		tx, err := db.conn.BeginTxx(ctx, nil)
		if err != nil {
			return werrors.Wrap(werrors.IO, err, "begin migration %s", name)
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			tx.Rollback()
			return werrors.Wrap(werrors.IO, err, "apply migration %s", name)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UnixMilli()); err != nil {
			tx.Rollback()
			return werrors.Wrap(werrors.IO, err, "record migration %s", name)
		}
		if err := tx.Commit(); err != nil {
			return werrors.Wrap(werrors.IO, err, "commit migration %s", name)
		}
		db.log.Printf("applied migration %s", name)
	}
	return nil
}

// DeleteAllData transactionally disables foreign keys, drops every
// non-system table, re-enables foreign keys, and re-runs migrations —
// atomic on commit.
func (db *DB) DeleteAllData(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
		return werrors.Wrap(werrors.IO, err, "disable foreign keys")
	}

	var tables []string
	if err := db.conn.SelectContext(ctx, &tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`); err != nil {
		return werrors.Wrap(werrors.IO, err, "list tables")
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return werrors.Wrap(werrors.IO, err, "begin delete-all")
	}
	for _, t := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, t)); err != nil {
			tx.Rollback()
			return werrors.Wrap(werrors.IO, err, "drop table %s", t)
		}
	}
	if err := tx.Commit(); err != nil {
		return werrors.Wrap(werrors.IO, err, "commit delete-all")
	}

	if _, err := db.conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return werrors.Wrap(werrors.IO, err, "re-enable foreign keys")
	}

	return db.migrate(ctx)
}

// decodeTimestamp converts an i64 epoch-millis column value to UTC,
// mapping out-of-range values to a decode error naming the column.
func decodeTimestamp(column string, millis int64) (time.Time, error) {
	if millis < 0 || millis > 1<<62 {
		return time.Time{}, werrors.New(werrors.IO, "column %q: epoch-millis out of range: %d", column, millis)
	}
	return time.UnixMilli(millis).UTC(), nil
}

func encodeTimestamp(t time.Time) int64 {
	return t.UnixMilli()
}
