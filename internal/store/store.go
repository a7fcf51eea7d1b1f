// Package store is the Receipt Store: the only component that mutates
// durable state. It owns a sqlite3 database (via mattn/go-sqlite3) whose
// schema mirrors spec.md §4.3, and enforces the atomic-write invariants
// that callers (the Jar Sync Engine) depend on rather than re-implement.
//
// Grounded on the append-only-log-with-seq-ordering-and-idempotent-insert
// shape documented in the pack's brutalist store notes (WAL mode,
// busy_timeout, unique-constraint-as-idempotency-key) and on the teacher's
// general preference for a small, direct data-access layer over an ORM.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, letting every query
// helper in this package run either standalone or inside an atomic write.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Store wraps the sqlite handle and the per-jar single-writer discipline
// required by spec.md §5: writes within one jar's ingest pipeline are
// serialized, writes across different jars may proceed in parallel.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	jarLocksMu sync.Mutex
	jarLocks   map[string]*sync.Mutex
}

// Open opens (creating if necessary) the sqlite database at dsn and
// applies the schema. dsn is a go-sqlite3 DSN, e.g. "file:/path/to.db" or
// ":memory:" for tests.
func Open(dsn string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// sqlite3 does not support concurrent writers on the same handle well;
	// a single physical connection keeps our own mutex discipline and the
	// driver's serialization in agreement.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{
		db:       db,
		log:      log,
		jarLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// lockForJar returns the mutex serializing writes for jarID, creating one
// on first use.
func (s *Store) lockForJar(jarID string) *sync.Mutex {
	s.jarLocksMu.Lock()
	defer s.jarLocksMu.Unlock()
	m, ok := s.jarLocks[jarID]
	if !ok {
		m = &sync.Mutex{}
		s.jarLocks[jarID] = m
	}
	return m
}

// WithJarWriteTx serializes callers by jarID (single-writer-per-jar) and
// runs fn inside a sqlite transaction, committing on success and rolling
// back on error or panic.
func (s *Store) WithJarWriteTx(ctx context.Context, jarID string, fn func(tx *sql.Tx) error) error {
	lock := s.lockForJar(jarID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for read-only queries from collaborator
// packages (registry, jarsync) that need to compose their own read paths.
func (s *Store) DB() *sql.DB { return s.db }
