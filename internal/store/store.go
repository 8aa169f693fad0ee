// Package store implements C1: relational persistence, schema migration,
// the FTS index, graph edges, user annotations, and sync history — all
// behind transactional operations, grounded on the teacher's
// internal/store/local_core.go SQLite setup (WAL, busy_timeout, single
// connection) and internal/store/migrations.go numbered-migration approach.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"starbase/internal/logging"
)

// Store is the C1 capability: the relational store backing repositories,
// graph edges, user annotations, and sync history.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open initializes (or reopens) the SQLite database at path, applying
// migrations and ensuring the FTS5 virtual table and its triggers exist.
// Store unavailability is fatal to the process per spec §4.1 failure
// semantics, so callers should treat a non-nil error as a startup abort.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: one writer at a time, matches the single-writer-per-resource discipline
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("pragma failed (%s): %v", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	logging.Store("store opened at %s", path)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	logging.Store("closing store")
	return s.db.Close()
}

// DB exposes the underlying handle for components (graph, history) that
// live in this package but in separate files.
func (s *Store) DB() *sql.DB { return s.db }
