package store

import (
	"database/sql"
	"errors"
	"time"
)

// BanEntry records a single ban, keyed by (affected, context) so the
// same player name can carry distinct bans per world/server scope.
// Grounded on original_source/src/server/database_auth.h's
// AuthBanEntry.
type BanEntry struct {
	Affected string
	Context  string
	Expiry   time.Time
	Comment  string
}

// BanStore persists bans and sweeps expired ones.
type BanStore struct {
	db *DB
}

// NewBanStore creates the bans table if absent.
func NewBanStore(db *DB) (*BanStore, error) {
	if _, err := db.sql.Exec(
		"CREATE TABLE IF NOT EXISTS bans (" +
			"affected TEXT, " +
			"context TEXT, " +
			"expiry INTEGER, " +
			"comment TEXT, " +
			"PRIMARY KEY(affected, context))"); err != nil {
		return nil, err
	}
	return &BanStore{db: db}, nil
}

// Ban inserts or replaces the ban record for (entry.Affected, entry.Context).
func (s *BanStore) Ban(entry BanEntry) error {
	_, err := s.db.sql.Exec(
		"REPLACE INTO bans (affected, context, expiry, comment) VALUES (?, ?, ?, ?)",
		entry.Affected, entry.Context, entry.Expiry.Unix(), entry.Comment)
	return err
}

// GetActive returns the ban record for (affected, context) if one exists
// and has not yet expired as of now. The second return reports whether
// an active ban was found, mirroring DatabaseAuth::getBanRecord.
func (s *BanStore) GetActive(affected, context string, now time.Time) (BanEntry, bool, error) {
	var entry BanEntry
	var expiry int64
	err := s.db.sql.QueryRow(
		"SELECT affected, context, expiry, comment FROM bans WHERE affected = ? AND context = ?",
		affected, context).Scan(&entry.Affected, &entry.Context, &expiry, &entry.Comment)
	if errors.Is(err, sql.ErrNoRows) {
		return BanEntry{}, false, nil
	}
	if err != nil {
		return BanEntry{}, false, err
	}
	entry.Expiry = time.Unix(expiry, 0)
	if entry.Expiry.Before(now) {
		return BanEntry{}, false, nil
	}
	return entry, true, nil
}

// CleanupBans removes every ban whose expiry has passed as of now.
func (s *BanStore) CleanupBans(now time.Time) error {
	_, err := s.db.sql.Exec("DELETE FROM bans WHERE expiry < ?", now.Unix())
	return err
}
