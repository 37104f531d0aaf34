// Package postgres implements store.Store over PostgreSQL. It is the
// only component that writes to the users/applications/jobs/properties
// tables; every write goes through database/sql with lib/pq, inside a
// transaction whenever more than one statement is involved.
package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"retz/internal/store"
)

// Store is the PostgreSQL-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// serializableTxOpts is passed to every BeginTx in this package.
// SERIALIZABLE is the whole correctness model behind read-modify-write
// operations like UpdateJob (§5/§8): anything weaker lets two
// concurrent transactions both read the same row and the later commit
// clobber the earlier one.
var serializableTxOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}

// Open connects to PostgreSQL, verifies it advertises SERIALIZABLE
// isolation, and bootstraps the schema if needed. It refuses to
// operate on a database that only partially has the four tables.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, store.WrapStoreError("Open", err)
	}
	db.SetMaxOpenConns(32)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := checkSerializable(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.bootstrapSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open *sql.DB, skipping the dial step. Used by
// tests that hand in a sqlmock connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying pool, e.g. for the golang-migrate upgrade
// path (Migrate).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	return store.WrapStoreError("Ping", s.db.PingContext(ctx))
}

// Stop drains the pool: it waits until no connection is in use
// (polling with 512ms backoff, per §5), then closes it.
func (s *Store) Stop(ctx context.Context) error {
	for {
		stats := s.db.Stats()
		if stats.InUse == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(512 * time.Millisecond):
		}
	}
	return store.WrapStoreError("Stop", s.db.Close())
}
