// Package store implements the SQLite-backed persistence layer: world
// blobs, auth accounts, a config KV table, and bans. See SPEC_FULL.md
// [MODULE store]. Grounded on original_source/src/server/database.cpp,
// database_world.cpp, and database_auth.cpp.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB opened against a single SQLite file, providing the
// explicit BEGIN/COMMIT transaction discipline the original's
// Database::tryOpen/close lifecycle follows.
type DB struct {
	sql *sql.DB
}

// Open opens (creating if absent) the SQLite database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	return &DB{sql: conn}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.sql.Close()
}

// withTx runs fn inside an explicit transaction, committing on success
// and rolling back on any error fn returns, mirroring the original's
// BEGIN/COMMIT-wrapped save() calls.
func (db *DB) withTx(fn func(*sql.Tx) error) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
