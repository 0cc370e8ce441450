package store

import (
	"database/sql"
	"errors"
	"time"
)

// AccountLevel mirrors original_source/src/server/database_auth.h's
// AuthAccount::AccountLevel ladder.
type AccountLevel int

const (
	LevelInvalid     AccountLevel = 0
	LevelRegistered  AccountLevel = 5
	LevelModerator   AccountLevel = 10
	LevelServerAdmin AccountLevel = 42
)

// Account is one row of the auth table.
type Account struct {
	Name          string
	Email         string
	PasswordHash  []byte
	PasswordReset string
	LastLogin     time.Time
	ResendRetry   time.Time
	BanExpiry     time.Time
	Level         AccountLevel
}

// LogEntry is one row of the log table.
type LogEntry struct {
	Timestamp time.Time
	Action    string
	Text      string
}

// AuthStore persists accounts and an audit log. Grounded on
// original_source/src/server/database_auth.cpp's schema and statement
// set.
type AuthStore struct {
	db *DB
}

// NewAuthStore creates the auth and log tables if absent.
func NewAuthStore(db *DB) (*AuthStore, error) {
	if _, err := db.sql.Exec(
		"CREATE TABLE IF NOT EXISTS auth (" +
			"name TEXT UNIQUE, " +
			"email TEXT, " +
			"password BLOB, " +
			"password_reset TEXT, " +
			"last_login INTEGER, " +
			"resend_retry INTEGER, " +
			"ban_expiry INTEGER, " +
			"level INTEGER, " +
			"PRIMARY KEY(name))"); err != nil {
		return nil, err
	}
	if _, err := db.sql.Exec(
		"CREATE TABLE IF NOT EXISTS log (" +
			"timestamp INTEGER, " +
			"action TEXT, " +
			"text TEXT)"); err != nil {
		return nil, err
	}
	return &AuthStore{db: db}, nil
}

// Load returns the account whose name or email matches nameOrEmail.
// Returns ErrNotFound if no row matches.
func (s *AuthStore) Load(nameOrEmail string) (*Account, error) {
	row := s.db.sql.QueryRow(
		"SELECT name, email, password, password_reset, last_login, resend_retry, ban_expiry, level "+
			"FROM auth WHERE name = ? OR email = ? LIMIT 1",
		nameOrEmail, nameOrEmail)

	var a Account
	var lastLogin, resendRetry, banExpiry int64
	var level int
	if err := row.Scan(&a.Name, &a.Email, &a.PasswordHash, &a.PasswordReset,
		&lastLogin, &resendRetry, &banExpiry, &level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.LastLogin = time.Unix(lastLogin, 0)
	a.ResendRetry = time.Unix(resendRetry, 0)
	a.BanExpiry = time.Unix(banExpiry, 0)
	a.Level = AccountLevel(level)
	return &a, nil
}

// Save replaces the account row for a.Name.
func (s *AuthStore) Save(a Account) error {
	return s.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"REPLACE INTO auth (name, email, password, password_reset, last_login, resend_retry, ban_expiry, level) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			a.Name, a.Email, a.PasswordHash, a.PasswordReset,
			a.LastLogin.Unix(), a.ResendRetry.Unix(), a.BanExpiry.Unix(), int(a.Level))
		return err
	})
}

// ResetPassword sets password_reset and resend_retry=now for the account
// with the given email, in one transaction.
func (s *AuthStore) ResetPassword(email, resetToken string, now time.Time) error {
	return s.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"UPDATE auth SET password_reset = ?, resend_retry = ? WHERE email = ?",
			resetToken, now.Unix(), email)
		return err
	})
}

// LogNow appends entry to the audit log with the given timestamp.
func (s *AuthStore) LogNow(entry LogEntry) error {
	_, err := s.db.sql.Exec(
		"REPLACE INTO log (timestamp, action, text) VALUES (?, ?, ?)",
		entry.Timestamp.Unix(), entry.Action, entry.Text)
	return err
}
