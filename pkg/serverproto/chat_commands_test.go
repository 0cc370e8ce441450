package serverproto

import (
	"testing"
	"time"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/world"
)

func TestRunCommandTitleRequiresCoowner(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	d.runCommand(p, "/title Denied Title")
	if room.world.Meta.Title == "Denied Title" {
		t.Fatal("expected /title to be rejected without co-owner rank")
	}

	room.world.Meta.SetPlayerFlags("alice", world.PFCoowner)
	d.runCommand(p, "/title New Title")
	if room.world.Meta.Title != "New Title" {
		t.Fatalf("expected /title to update the title once granted co-owner, got %q", room.world.Meta.Title)
	}
}

func TestRunCommandCodeGrantsTempEditOnMatch(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.EditCode = "secret"

	d.runCommand(p, "/code wrong")
	if room.world.Meta.GetPlayerFlags("alice").Check(world.PFTmpEdit) {
		t.Fatal("expected a wrong code to grant nothing")
	}

	d.runCommand(p, "/code secret")
	if !room.world.Meta.GetPlayerFlags("alice").Check(world.PFTmpEdit) {
		t.Fatal("expected the correct code to grant temporary edit")
	}
}

func TestRunCommandSetCodeRevokeClearsTempFlags(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFCoowner|world.PFTmpEdit)

	d.runCommand(p, "/setcode -f newcode")

	if room.world.Meta.EditCode != "newcode" {
		t.Fatalf("expected edit code to update, got %q", room.world.Meta.EditCode)
	}
	if room.world.Meta.GetPlayerFlags("alice").Check(world.PFTmpEdit) {
		t.Fatal("expected -f to revoke every player's temporary edit grants")
	}
}

func TestRunCommandFSetAndFDelRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFCoowner)

	d.runCommand(p, "/fset bob godmode")
	if !room.world.Meta.GetPlayerFlags("bob").Check(world.PFGodmode) {
		t.Fatal("expected /fset to grant godmode to bob")
	}

	d.runCommand(p, "/fdel bob godmode")
	if room.world.Meta.GetPlayerFlags("bob").Check(world.PFGodmode) {
		t.Fatal("expected /fdel to revoke godmode from bob")
	}
}

func TestRunCommandFSetDeniedWithoutRank(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	d.runCommand(p, "/fset bob godmode")
	if room.world.Meta.GetPlayerFlags("bob").Check(world.PFGodmode) {
		t.Fatal("expected /fset to be denied for a normal-rank actor")
	}
}

func TestRunCommandClearSwapsWorldAndResizes(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room, _ := d.roomOf(p.World)
	room.world.Meta.SetPlayerFlags("alice", world.PFCoowner)

	d.runCommand(p, "/clear 5 5")

	newRoom, ok := d.roomOf(p.World)
	if !ok {
		t.Fatal("expected the peer to still be in a room after /clear")
	}
	if newRoom.world == room.world {
		t.Fatal("expected /clear to swap in a fresh World, not mutate the old one")
	}
	w, h := newRoom.world.Size()
	if w != 5 || h != 5 {
		t.Fatalf("expected the world to be resized to 5x5, got %dx%d", w, h)
	}
}

func TestRunCommandSaveThenLoadRoundTrips(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Ppersist")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFCoowner)

	if _, err := room.world.UpdateBlock(world.BlockUpdate{
		Pos: world.Pos{X: 1, Y: 1}, Layer: world.LayerForeground, Cell: world.Cell{ID: blocks.IDSpikes},
	}); err != nil {
		t.Fatal(err)
	}

	d.runCommand(p, "/save")

	newRoom, ok := d.roomOf(p.World)
	if !ok {
		t.Fatal("expected the peer to still be in a room")
	}

	d.runCommand(p, "/load")

	reloadedRoom, ok := d.roomOf(p.World)
	if !ok {
		t.Fatal("expected the peer to still be in a room after /load")
	}
	if reloadedRoom.world == newRoom.world {
		t.Fatal("expected /load to swap in a freshly loaded World")
	}
	cell, ok := reloadedRoom.world.GetBlock(world.Pos{X: 1, Y: 1}, world.LayerForeground)
	if !ok || cell.ID != blocks.IDSpikes {
		t.Fatalf("expected /load to restore the saved block, got %+v", cell)
	}
}

func TestRunCommandSaveCooldownRejectsSecondSaveImmediately(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Pcooldown")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFCoowner)

	now := time.Now()
	if !d.SaveGate.Allow(room.world.Meta.ID, now) {
		t.Fatal("expected the first save attempt's gate to be open")
	}
	if d.SaveGate.Allow(room.world.Meta.ID, now) {
		t.Fatal("expected an immediate second attempt to be throttled")
	}
}
