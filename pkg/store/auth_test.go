package store

import (
	"testing"
	"time"
)

func TestAuthStoreSaveLoadByNameOrEmail(t *testing.T) {
	db := openTestDB(t)
	store, err := NewAuthStore(db)
	if err != nil {
		t.Fatal(err)
	}

	acct := Account{
		Name:         "alice",
		Email:        "alice@example.com",
		PasswordHash: []byte("hash"),
		Level:        LevelRegistered,
		LastLogin:    time.Unix(1000, 0),
	}
	if err := store.Save(acct); err != nil {
		t.Fatal(err)
	}

	byName, err := store.Load("alice")
	if err != nil {
		t.Fatal(err)
	}
	if byName.Email != acct.Email || byName.Level != LevelRegistered {
		t.Fatalf("expected round trip by name, got %+v", byName)
	}

	byEmail, err := store.Load("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if byEmail.Name != "alice" {
		t.Fatalf("expected round trip by email, got %+v", byEmail)
	}
}

func TestAuthStoreLoadMissingReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	store, err := NewAuthStore(db)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load("nobody"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthStoreResetPassword(t *testing.T) {
	db := openTestDB(t)
	store, err := NewAuthStore(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(Account{Name: "bob", Email: "bob@example.com"}); err != nil {
		t.Fatal(err)
	}
	now := time.Unix(5000, 0)
	if err := store.ResetPassword("bob@example.com", "resettoken", now); err != nil {
		t.Fatal(err)
	}
	got, err := store.Load("bob")
	if err != nil {
		t.Fatal(err)
	}
	if got.PasswordReset != "resettoken" || !got.ResendRetry.Equal(now) {
		t.Fatalf("expected reset fields to be updated, got %+v", got)
	}
}

func TestAuthStoreLogNow(t *testing.T) {
	db := openTestDB(t)
	store, err := NewAuthStore(db)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.LogNow(LogEntry{Timestamp: time.Unix(1, 0), Action: "login", Text: "alice"}); err != nil {
		t.Fatal(err)
	}
}
