// Package store is the SQLite repository for congresstwin: plans, buckets,
// tasks, subtasks, dependencies, task locks, external events, proposed
// actions, historical samples and sync state. Mutations run through WithTx so
// a request's writes land atomically; analytical code reads a Snapshot and
// never comes back mid-computation.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"congresstwin/internal/logging"
)

// Store wraps the SQLite handle. Safe for concurrent use; sqlite access is
// serialized through a single connection.
type Store struct {
	queries
	db   *sql.DB
	path string
}

// dbtx is the common surface of *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every repository operation; it runs against the root handle
// or a transaction, so the same code serves both paths.
type queries struct {
	q dbtx
}

// Tx exposes the repository operations inside one transaction.
type Tx struct {
	queries
}

// Open initializes the database at path, creating directories and applying
// the schema. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	log := logging.Get(logging.CategoryStore)

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: sqlite serializes writers anyway, and a single conn
	// keeps in-memory databases from evaporating between calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debugw("pragma failed", "pragma", pragma, "error", err)
		}
	}

	s := &Store{queries: queries{q: db}, db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugw("database ready", "path", path)
	return s, nil
}

// Close releases the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside one transaction: commit on nil, rollback otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Tx{queries{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logging.Get(logging.CategoryStore).Errorw("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
