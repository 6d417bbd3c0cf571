// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session, message and template persistence.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures Open.
type Options struct {
	// Path is the SQLite database file. Its directory is created if needed.
	Path string

	// SeedPresets inserts the built-in presets on first initialization.
	SeedPresets bool

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration

	// JournalMode is the SQLite journal mode. Default: WAL
	JournalMode string

	// Logger receives store diagnostics. Default: slog.Default()
	Logger *slog.Logger

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// DefaultOptions returns options for the given database path.
func DefaultOptions(path string) Options {
	return Options{
		Path:        path,
		SeedPresets: true,
		BusyTimeout: 5 * time.Second,
		JournalMode: "WAL",
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the database file and hands out the component stores.
// All components share one *sql.DB limited to a single connection, so
// transactions from this process are serialized.
type Store struct {
	db   *sql.DB
	path string
	opts Options
	log  *slog.Logger

	Sessions  *SessionStore
	Messages  *MessageStore
	Templates *TemplateStore
	Search    *SearchEngine
}

// Open opens (creating if necessary) the database at opts.Path and
// initializes the schema. It fails with ErrStorageUnavailable if the file
// cannot be created or written.
func Open(ctx context.Context, opts Options) (*Store, error) {
	const op = "storage.Open"

	if strings.TrimSpace(opts.Path) == "" {
		return nil, invalidArg(op, "database path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.JournalMode == "" {
		opts.JournalMode = "WAL"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, newError(op, ErrStorageUnavailable, fmt.Errorf("create database directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", buildDSN(opts))
	if err != nil {
		return nil, newError(op, ErrStorageUnavailable, fmt.Errorf("open database: %w", err))
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newError(op, ErrStorageUnavailable, fmt.Errorf("ping database: %w", err))
	}

	s := &Store{
		db:   db,
		path: opts.Path,
		opts: opts,
		log:  opts.Logger.With("component", "storage"),
	}
	s.Sessions = &SessionStore{s: s}
	s.Messages = &MessageStore{s: s}
	s.Templates = &TemplateStore{s: s}
	s.Search = &SearchEngine{s: s}

	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Info("database opened", "path", opts.Path, "journal_mode", opts.JournalMode)
	return s, nil
}

// buildDSN encodes connection pragmas into the modernc DSN so every pooled
// connection gets them, not just the first one.
func buildDSN(opts Options) string {
	pragmas := []string{
		"foreign_keys(1)",
		fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()),
		"synchronous(NORMAL)",
	}
	if opts.Path != ":memory:" {
		pragmas = append(pragmas, fmt.Sprintf("journal_mode(%s)", opts.JournalMode))
	}

	params := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	// Writers take the lock at BEGIN, so setDefault and friends never
	// upgrade a read lock mid-transaction.
	params = append(params, "_txlock=immediate")

	return opts.Path + "?" + strings.Join(params, "&")
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// =============================================================================
// SCHEMA
// =============================================================================

// InitSchema applies pending migrations and, if enabled, seeds the built-in
// presets. It is idempotent and safe to call on every start.
func (s *Store) InitSchema(ctx context.Context) error {
	const op = "storage.InitSchema"

	if err := s.migrate(); err != nil {
		return newError(op, ErrStorageUnavailable, err)
	}

	if s.opts.SeedPresets {
		if err := s.seedPresets(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	// m.Close would also close the shared *sql.DB, so only the source is
	// released here.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		src.Close()
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer src.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	s.log.Debug("schema ready", "version", version, "dirty", dirty)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// withTx runs fn inside one transaction. Any error from fn rolls the
// transaction back and is returned classified; the original cause is kept.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newError(op, ErrTransactionFailed, fmt.Errorf("begin: %w", err))
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", "op", op, "error", rbErr, "cause", err)
		} else {
			s.log.Debug("transaction rolled back", "op", op, "cause", err)
		}
		return classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		return newError(op, ErrTransactionFailed, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// now returns the store clock in UTC.
func (s *Store) now() time.Time {
	return s.opts.Now().UTC()
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

var (
	// minTime and maxTime bound the instants a Unix-nanosecond column holds.
	minTime = time.Unix(0, math.MinInt64).UTC()
	maxTime = time.Unix(0, math.MaxInt64).UTC()
)

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// checkTime rejects a timestamp that toNanos would wrap.
func checkTime(op, field string, t time.Time) error {
	if t.Before(minTime) || t.After(maxTime) {
		return invalidArg(op, "%s %s outside the storable years %d to %d",
			field, t.UTC().Format(time.RFC3339), minTime.Year(), maxTime.Year())
	}
	return nil
}

// boundNanos converts a range bound, clamping it to the storable span.
func boundNanos(t time.Time) int64 {
	switch {
	case t.Before(minTime):
		return math.MinInt64
	case t.After(maxTime):
		return math.MaxInt64
	}
	return toNanos(t)
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
