// Package store implements the staging store of spec §4.1/§6: a
// row-oriented persistent store that holds every candidate address
// for the duration of a run, backed by modernc.org/sqlite (a pure-Go
// driver — see DESIGN.md for why it was borrowed from the
// AKJUS-bsc-erigon example instead of a cgo sqlite binding).
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store owns every row for the duration of a run (spec §3
// "Ownership"). It is shared read-only during stages 4-6 and
// exclusive during the emitter's delete phase (spec §5).
type Store struct {
	db *sql.DB
}

// schema is the literal staging schema of spec §6, plus the
// secondary collision-key index table of spec §4.4. id is an
// sqlite rowid alias: monotonic and stable for a run, which satisfies
// the survivor selector's "smallest id" tie-break determinism
// requirement (spec §9, resolved in DESIGN.md).
const schema = `
CREATE TABLE IF NOT EXISTS addresses (
	id       INTEGER PRIMARY KEY,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL,
	number   TEXT,
	street   TEXT NOT NULL,
	unit     TEXT,
	city     TEXT,
	district TEXT,
	region   TEXT,
	postcode TEXT,
	source   TEXT NOT NULL,
	UNIQUE(lat, lon, number, street, city)
);

CREATE TABLE IF NOT EXISTS addresses_errors (
	id       INTEGER PRIMARY KEY,
	lat      REAL NOT NULL,
	lon      REAL NOT NULL,
	number   TEXT,
	street   TEXT,
	unit     TEXT,
	city     TEXT,
	district TEXT,
	region   TEXT,
	postcode TEXT,
	source   TEXT,
	kind     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS collision_keys (
	key    TEXT NOT NULL,
	row_id INTEGER NOT NULL
);
`

// Open creates or opens the staging DB at path and ensures the schema
// exists. Bulk mode (spec §4.1) is opt-in: Insert commits each row on
// its own, and callers that need the ~10^4-row grouped-transaction
// import path use BulkInsert.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open staging store: %w", err)
	}

	// A single-writer batch engine does not need a connection pool;
	// sqlite serialises writers anyway, and one connection keeps
	// transaction semantics simple during bulk inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying DB handle. Per spec §7, a
// StorageFailure mid-run rolls back the in-flight transaction and
// leaves the file intact; Close itself never deletes anything —
// that's cmd/deduplicator's --keep-db decision.
func (s *Store) Close() error {
	return s.db.Close()
}

// Count returns the number of surviving rows in addresses.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM addresses`).Scan(&n)
	return n, err
}

// BuildCollisionIndex creates the index on collision_keys.key, done
// once after all rows have been hashed (spec §4.4 step 3).
func (s *Store) BuildCollisionIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_collision_keys ON collision_keys(key)`)
	return err
}

// RebuildPrimaryIndex is called after the emitter's in-place delete
// phase; sqlite's primary key index never needs an explicit rebuild,
// but ANALYZE keeps the query planner accurate for the next run.
func (s *Store) RebuildPrimaryIndex(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `ANALYZE addresses`)
	return err
}
