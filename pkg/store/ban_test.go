package store

import (
	"testing"
	"time"
)

func TestBanStoreActiveBanRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store, err := NewBanStore(db)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(1000, 0)
	entry := BanEntry{Affected: "alice", Context: "world1", Expiry: now.Add(time.Hour), Comment: "griefing"}
	if err := store.Ban(entry); err != nil {
		t.Fatal(err)
	}
	got, found, err := store.GetActive("alice", "world1", now)
	if err != nil {
		t.Fatal(err)
	}
	if !found || got.Comment != "griefing" {
		t.Fatalf("expected active ban found, got %+v, %v", got, found)
	}
}

func TestBanStoreExpiredBanNotActive(t *testing.T) {
	db := openTestDB(t)
	store, err := NewBanStore(db)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(10000, 0)
	entry := BanEntry{Affected: "bob", Context: "world1", Expiry: now.Add(-time.Hour)}
	if err := store.Ban(entry); err != nil {
		t.Fatal(err)
	}
	_, found, err := store.GetActive("bob", "world1", now)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected an expired ban to not be reported active")
	}
}

func TestBanStoreCleanupRemovesExpired(t *testing.T) {
	db := openTestDB(t)
	store, err := NewBanStore(db)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Unix(10000, 0)
	if err := store.Ban(BanEntry{Affected: "carl", Context: "w", Expiry: now.Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := store.Ban(BanEntry{Affected: "dana", Context: "w", Expiry: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := store.CleanupBans(now); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.GetActive("carl", "w", now); found {
		t.Fatal("expected expired ban to be swept")
	}
	if _, found, _ := store.GetActive("dana", "w", now); !found {
		t.Fatal("expected active ban to survive cleanup")
	}
}
