package store

import (
	"testing"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/world"
)

func newTestManager(t *testing.T) *blocks.Manager {
	t.Helper()
	mgr := blocks.NewManager()
	if err := mgr.DoPackRegistration(); err != nil {
		t.Fatal(err)
	}
	mgr.DoPackPostprocess()
	return mgr
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWorldStoreSaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store, err := NewWorldStore(db)
	if err != nil {
		t.Fatal(err)
	}

	mgr := newTestManager(t)
	w := world.NewWorld(mgr, world.NewMeta("Tworld1", "alice"))
	if err := w.CreateEmpty(10, 10); err != nil {
		t.Fatal(err)
	}
	if err := w.SetBlock(world.Pos{X: 3, Y: 4}, world.LayerForeground, world.Cell{ID: blocks.ID(9)}); err != nil {
		t.Fatal(err)
	}
	w.Meta.Plays = 7

	if err := store.Save(w); err != nil {
		t.Fatal(err)
	}

	loaded := world.NewWorld(mgr, world.NewMeta("Tworld1", ""))
	if err := store.Load(loaded); err != nil {
		t.Fatal(err)
	}

	width, height := loaded.Size()
	if width != 10 || height != 10 {
		t.Fatalf("expected 10x10, got %dx%d", width, height)
	}
	if loaded.Meta.Owner != "alice" || loaded.Meta.Plays != 7 {
		t.Fatalf("expected owner/plays to round trip, got %+v", loaded.Meta)
	}
	cell, ok := loaded.GetBlock(world.Pos{X: 3, Y: 4}, world.LayerForeground)
	if !ok || cell.ID != blocks.ID(9) {
		t.Fatalf("expected the placed block to round trip, got %+v, %v", cell, ok)
	}
}

func TestWorldStoreLoadMissingReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	store, err := NewWorldStore(db)
	if err != nil {
		t.Fatal(err)
	}
	mgr := newTestManager(t)
	w := world.NewWorld(mgr, world.NewMeta("Tmissing", ""))
	if err := store.Load(w); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWorldStoreRoundTripsTeleporterParams(t *testing.T) {
	db := openTestDB(t)
	store, err := NewWorldStore(db)
	if err != nil {
		t.Fatal(err)
	}
	mgr := newTestManager(t)
	w := world.NewWorld(mgr, world.NewMeta("Ttele", "bob"))
	if err := w.CreateEmpty(5, 5); err != nil {
		t.Fatal(err)
	}
	pos := world.Pos{X: 1, Y: 1}
	params := world.BlockParams{Type: world.ParamsTeleporter, Teleporter: world.TeleporterParams{Rotation: 2, ID: 5, DstID: 9}}
	if _, err := w.UpdateBlock(world.BlockUpdate{
		Pos: pos, Layer: world.LayerForeground,
		Cell:   world.Cell{ID: blocks.IDTeleporter},
		Params: params,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(w); err != nil {
		t.Fatal(err)
	}

	loaded := world.NewWorld(mgr, world.NewMeta("Ttele", ""))
	if err := store.Load(loaded); err != nil {
		t.Fatal(err)
	}
	got, ok := loaded.GetParams(pos)
	if !ok || got != params {
		t.Fatalf("expected teleporter params to round trip exactly, got %+v, %v", got, ok)
	}
}
