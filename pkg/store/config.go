package store

import (
	"database/sql"
	"errors"
)

// ConfigStore is a single string-to-string key/value table, for small
// server-wide settings (MOTD overrides, feature toggles) that don't
// warrant their own schema. Grounded on
// original_source/src/server/database_auth.h's getConfig/setConfig.
type ConfigStore struct {
	db *DB
}

// NewConfigStore creates the config table if absent.
func NewConfigStore(db *DB) (*ConfigStore, error) {
	if _, err := db.sql.Exec(
		"CREATE TABLE IF NOT EXISTS config (key TEXT UNIQUE, value TEXT, PRIMARY KEY(key))"); err != nil {
		return nil, err
	}
	return &ConfigStore{db: db}, nil
}

// Get returns the value stored for key. Returns ErrNotFound if absent.
func (s *ConfigStore) Get(key string) (string, error) {
	var value string
	err := s.db.sql.QueryRow("SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Set writes or overwrites key's value.
func (s *ConfigStore) Set(key, value string) error {
	_, err := s.db.sql.Exec("REPLACE INTO config (key, value) VALUES (?, ?)", key, value)
	return err
}

// Delete removes key. A no-op if it doesn't exist.
func (s *ConfigStore) Delete(key string) error {
	_, err := s.db.sql.Exec("DELETE FROM config WHERE key = ?", key)
	return err
}
