package store

import (
	"database/sql"
	"errors"
)

// FriendStatus mirrors AuthFriend::Entry::status in
// original_source/src/server/database_auth.h.
type FriendStatus int

const (
	FriendNone FriendStatus = iota
	FriendAccepted
	FriendPending
	FriendRejected
)

// Friend is one row of the friends table: a pair of accounts sorted
// alphabetically (mirroring the original's "p1, p2 sorted alphabetically
// for the database" comment) each with their own status, since a
// pending request is accepted/rejected independently by each side.
type Friend struct {
	Name1, Name2     string
	Status1, Status2 FriendStatus
}

// sortedPair returns a, b and their statuses in alphabetical order so
// the same unordered relation always maps to the same row.
func sortedPair(a, b string, sa, sb FriendStatus) (string, FriendStatus, string, FriendStatus) {
	if a <= b {
		return a, sa, b, sb
	}
	return b, sb, a, sa
}

// FriendStore persists the social graph. Grounded on
// original_source/src/server/database_auth.h's AuthFriend/listFriends/
// setFriend/removeFriend contract.
type FriendStore struct {
	db *DB
}

// NewFriendStore creates the friends table if absent.
func NewFriendStore(db *DB) (*FriendStore, error) {
	if _, err := db.sql.Exec(
		"CREATE TABLE IF NOT EXISTS friends (" +
			"name1 TEXT, status1 INTEGER, " +
			"name2 TEXT, status2 INTEGER, " +
			"PRIMARY KEY(name1, name2))"); err != nil {
		return nil, err
	}
	return &FriendStore{db: db}, nil
}

// List returns every friend relation involving name.
func (s *FriendStore) List(name string) ([]Friend, error) {
	rows, err := s.db.sql.Query(
		"SELECT name1, status1, name2, status2 FROM friends WHERE name1 = ? OR name2 = ?",
		name, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Friend
	for rows.Next() {
		var f Friend
		if err := rows.Scan(&f.Name1, &f.Status1, &f.Name2, &f.Status2); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Set inserts or overwrites the relation between a and b, mirroring
// setFriend. A first request from a to b starts as Pending on b's side
// and Accepted on a's (the requester), matching the original's "p1 is
// guaranteed to correspond to name" contract generalized to either side
// initiating.
func (s *FriendStore) Set(a string, statusA FriendStatus, b string, statusB FriendStatus) error {
	name1, s1, name2, s2 := sortedPair(a, statusA, b, statusB)
	return s.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"REPLACE INTO friends (name1, status1, name2, status2) VALUES (?, ?, ?, ?)",
			name1, int(s1), name2, int(s2))
		return err
	})
}

// Remove deletes the relation between a and b entirely.
func (s *FriendStore) Remove(a, b string) error {
	name1, _, name2, _ := sortedPair(a, FriendNone, b, FriendNone)
	_, err := s.db.sql.Exec("DELETE FROM friends WHERE name1 = ? AND name2 = ?", name1, name2)
	return err
}

// ErrNoSuchFriend is returned when a removal or lookup targets a
// relation that does not exist.
var ErrNoSuchFriend = errors.New("store: no such friend relation")

// Get returns the single relation between a and b, if any.
func (s *FriendStore) Get(a, b string) (Friend, error) {
	name1, _, name2, _ := sortedPair(a, FriendNone, b, FriendNone)
	row := s.db.sql.QueryRow(
		"SELECT name1, status1, name2, status2 FROM friends WHERE name1 = ? AND name2 = ?",
		name1, name2)
	var f Friend
	if err := row.Scan(&f.Name1, &f.Status1, &f.Name2, &f.Status2); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Friend{}, ErrNoSuchFriend
		}
		return Friend{}, err
	}
	return f, nil
}
