package serverproto

import (
	"testing"

	"github.com/StoreStation/eeland/pkg/auth"
	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/physics"
	"github.com/StoreStation/eeland/pkg/store"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/wire"
	"github.com/StoreStation/eeland/pkg/world"
)

// encodeMoveBody builds a client Move packet body: the bare <physics>
// six-float snapshot, mirroring writePhysics.
func encodeMoveBody(p physics.Player) []byte {
	b := wire.NewBuffer()
	b.WriteF32(float32(p.Pos.X))
	b.WriteF32(float32(p.Pos.Y))
	b.WriteF32(float32(p.Vel.X))
	b.WriteF32(float32(p.Vel.Y))
	b.WriteF32(float32(p.Acc.X))
	b.WriteF32(float32(p.Acc.Y))
	return b.Bytes()
}

func TestHandleMoveRebroadcastsToRoommatesOnly(t *testing.T) {
	d := newTestDispatcher(t)
	a := transport.PeerID(1)
	bPeer := transport.PeerID(2)
	joinRoom(t, d, a, "alice", "Troom")
	joinRoom(t, d, bPeer, "bob", "Troom")

	pa := mustPlayer(t, d, a)
	if err := handleMove(d, pa, encodeMoveBody(physics.Player{Pos: physics.Vec2{X: 5, Y: 5}})); err != nil {
		t.Fatal(err)
	}
	if pa.Physics.Pos.X != 5 || pa.Physics.Pos.Y != 5 {
		t.Fatalf("expected player's physics snapshot to update, got %+v", pa.Physics)
	}
}

func TestHandleMoveBelowSnapThresholdLeavesPositionAlone(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleMove(d, p, encodeMoveBody(physics.Player{Pos: physics.Vec2{X: 3, Y: 3}})); err != nil {
		t.Fatal(err)
	}
	if p.Suspicion > antiCheatSnapThreshold {
		t.Fatalf("expected a single ordinary Move to stay below the snap threshold, got suspicion %v", p.Suspicion)
	}
	if p.Physics.Pos.X != 3 || p.Physics.Pos.Y != 3 {
		t.Fatalf("expected reported position to be accepted, got %+v", p.Physics.Pos)
	}
}

// TestHandleMoveSnapsBackPastThreshold drives p.Suspicion directly past
// antiCheatSnapThreshold (rather than relying on naturally-occurring
// physics anomalies) and confirms the reported position is discarded in
// favour of the player's last known-good position, per spec.md §4.6.
func TestHandleMoveSnapsBackPastThreshold(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	p.LastPos = world.Pos{X: 2, Y: 2}
	p.Suspicion = antiCheatSnapThreshold + 1
	p.LastMoveAt = d.Env.Now()

	if err := handleMove(d, p, encodeMoveBody(physics.Player{Pos: physics.Vec2{X: 99, Y: 99}, Vel: physics.Vec2{X: 50}})); err != nil {
		t.Fatal(err)
	}
	if p.Physics.Pos.X != 2 || p.Physics.Pos.Y != 2 {
		t.Fatalf("expected snapped-back position (2,2), got %+v", p.Physics.Pos)
	}
	if p.Physics.Vel != (physics.Vec2{}) {
		t.Fatalf("expected velocity to be zeroed on snap-back, got %+v", p.Physics.Vel)
	}
}

// TestHandleMoveKicksPastThreshold confirms a player whose running score
// crosses antiCheatKickThreshold is disconnected. Transport has no
// registered connection for this peer, so Disconnect's own error is
// swallowed; this test only asserts the handler attempts it (no panic)
// and does not un-flag the player.
func TestHandleMoveKicksPastThreshold(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	p.Suspicion = antiCheatKickThreshold + 1
	p.LastMoveAt = d.Env.Now()

	if err := handleMove(d, p, encodeMoveBody(physics.Player{Pos: physics.Vec2{X: 1, Y: 1}})); err != nil {
		t.Fatal(err)
	}
}

// TestHandleMoveDecaysSuspicionOverElapsedTime confirms the running score
// decays by real elapsed wall time rather than staying pinned, mirroring
// RemotePlayer::runAnticheat's decay-before-accumulate order.
func TestHandleMoveDecaysSuspicionOverElapsedTime(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	p.Suspicion = 50
	p.LastMoveAt = 0

	if err := handleMove(d, p, encodeMoveBody(physics.Player{})); err != nil {
		t.Fatal(err)
	}
	if p.Suspicion >= 50 {
		t.Fatalf("expected suspicion to decay given elapsed time since LastMoveAt=0, got %v", p.Suspicion)
	}
}

func TestHandleChatRejectsControlCharacters(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleChat(d, p, encodeChatBody("hello\x07world")); err != nil {
		t.Fatal(err)
	}
	room, _ := d.roomOf(p.World)
	if len(room.world.Meta.ChatHistory) != 0 {
		t.Fatal("expected a control character to be rejected before reaching chat history")
	}
}

func TestHandleChatMutedPlayerIsDropped(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFMuted)

	if err := handleChat(d, p, encodeChatBody("hello")); err != nil {
		t.Fatal(err)
	}
	if len(room.world.Meta.ChatHistory) != 0 {
		t.Fatal("expected a muted player's chat to be dropped")
	}
}

func TestHandleChatRoutesCommandPrefixToDispatcher(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleChat(d, p, encodeChatBody(string(commandPrefix)+"title New Title")); err != nil {
		t.Fatal(err)
	}
	if len(room.world.Meta.ChatHistory) != 0 {
		t.Fatal("expected a command-prefixed message to never reach ordinary chat history")
	}
}

func TestHandleChatRecordsOrdinaryMessage(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleChat(d, p, encodeChatBody("hello there")); err != nil {
		t.Fatal(err)
	}
	if len(room.world.Meta.ChatHistory) != 1 || room.world.Meta.ChatHistory[0].Message != "hello there" {
		t.Fatalf("expected chat history to record the message, got %+v", room.world.Meta.ChatHistory)
	}
}

func encodePlaceBlockBody(entries []clientPlaceBlockEntry) []byte {
	b := wire.NewBuffer()
	for _, e := range entries {
		b.WriteU8(1)
		b.WriteU16(uint16(e.Pos.X))
		b.WriteU16(uint16(e.Pos.Y))
		b.WriteU16(uint16(e.ID))
		b.WriteU8(e.Param1)
	}
	b.WriteU8(0)
	return b.Bytes()
}

func TestHandlePlaceBlockRequiresEditFlag(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Iimport")
	p := mustPlayer(t, d, peer)
	// an "I" (readonly) world grants no default edit flags.
	body := encodePlaceBlockBody([]clientPlaceBlockEntry{{Pos: world.Pos{X: 1, Y: 1}, ID: blocks.IDSpikes, Param1: 2}})
	if err := handlePlaceBlock(d, p, body); err != nil {
		t.Fatal(err)
	}
	cell, _ := room.world.GetBlock(world.Pos{X: 1, Y: 1}, world.LayerForeground)
	if cell.ID == blocks.IDSpikes {
		t.Fatal("expected place to be rejected without an edit flag")
	}
}

func TestHandlePlaceBlockAppliesU8Param(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFEditDraw)

	body := encodePlaceBlockBody([]clientPlaceBlockEntry{{Pos: world.Pos{X: 1, Y: 1}, ID: blocks.IDSpikes, Param1: 3}})
	if err := handlePlaceBlock(d, p, body); err != nil {
		t.Fatal(err)
	}
	cell, ok := room.world.GetBlock(world.Pos{X: 1, Y: 1}, world.LayerForeground)
	if !ok || cell.ID != blocks.IDSpikes {
		t.Fatalf("expected spikes to be placed at (1,1), got %+v", cell)
	}
	params, ok := room.world.GetParams(world.Pos{X: 1, Y: 1})
	if !ok || params.U8 != 3 {
		t.Fatalf("expected u8 param 3 to be stored, got %+v", params)
	}
}

func encodeOnTouchBody(x, y int) []byte {
	b := wire.NewBuffer()
	b.WriteU16(uint16(x))
	b.WriteU16(uint16(y))
	return b.Bytes()
}

func TestHandleOnTouchBlockTogglesKeyGate(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFEditDraw)
	if _, err := room.world.UpdateBlock(world.BlockUpdate{Pos: world.Pos{X: 2, Y: 2}, Layer: world.LayerForeground, Cell: world.Cell{ID: blocks.IDKeyR}}); err != nil {
		t.Fatal(err)
	}

	before := room.world.Meta.Keys[0]
	if err := handleOnTouchBlock(d, p, encodeOnTouchBody(2, 2)); err != nil {
		t.Fatal(err)
	}
	if room.world.Meta.Keys[0] == before {
		t.Fatal("expected touching a key block to flip its gate timer")
	}
}

// TestHandleOnTouchBlockFlipsDoorAndGateTiles asserts that toggling a
// key actually opens/closes its paired door and gate, not just the
// Meta.Keys bookkeeping flag.
func TestHandleOnTouchBlockFlipsDoorAndGateTiles(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFEditDraw)
	if _, err := room.world.UpdateBlock(world.BlockUpdate{Pos: world.Pos{X: 2, Y: 2}, Layer: world.LayerForeground, Cell: world.Cell{ID: blocks.IDKeyR}}); err != nil {
		t.Fatal(err)
	}
	if _, err := room.world.UpdateBlock(world.BlockUpdate{Pos: world.Pos{X: 4, Y: 4}, Layer: world.LayerForeground, Cell: world.Cell{ID: blocks.IDDoorR}}); err != nil {
		t.Fatal(err)
	}
	if _, err := room.world.UpdateBlock(world.BlockUpdate{Pos: world.Pos{X: 5, Y: 5}, Layer: world.LayerForeground, Cell: world.Cell{ID: blocks.IDGateR}}); err != nil {
		t.Fatal(err)
	}

	if err := handleOnTouchBlock(d, p, encodeOnTouchBody(2, 2)); err != nil {
		t.Fatal(err)
	}

	door, _ := room.world.GetBlock(world.Pos{X: 4, Y: 4}, world.LayerForeground)
	gate, _ := room.world.GetBlock(world.Pos{X: 5, Y: 5}, world.LayerForeground)
	if door.Tile != gate.Tile {
		t.Fatalf("expected door and gate to share the key's tile index, got door=%d gate=%d", door.Tile, gate.Tile)
	}
	doorProps, _ := d.Blocks.GetProps(blocks.IDDoorR)
	gateProps, _ := d.Blocks.GetProps(blocks.IDGateR)
	if doorProps.EffectiveDraw(door.Tile) == gateProps.EffectiveDraw(gate.Tile) {
		t.Fatal("expected door and gate to resolve to opposite solidity after the key toggle")
	}
}

func TestHandleOnTouchBlockIgnoresNonKeysPack(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFEditDraw)
	if _, err := room.world.UpdateBlock(world.BlockUpdate{Pos: world.Pos{X: 3, Y: 3}, Layer: world.LayerForeground, Cell: world.Cell{ID: blocks.IDSpikes}}); err != nil {
		t.Fatal(err)
	}
	before := room.world.Meta.Keys
	if err := handleOnTouchBlock(d, p, encodeOnTouchBody(3, 3)); err != nil {
		t.Fatal(err)
	}
	if room.world.Meta.Keys != before {
		t.Fatal("expected a non-keys-pack block to never touch the gate state")
	}
}

func TestHandleGodModeRequiresPermission(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Iimport")
	p := mustPlayer(t, d, peer)
	if err := handleGodMode(d, p, nil); err != nil {
		t.Fatal(err)
	}
	if p.Physics.Godmode {
		t.Fatal("expected godmode toggle to be rejected without the permission flag")
	}
}

func TestHandleGodModeTogglesWithPermission(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	room := joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)
	room.world.Meta.SetPlayerFlags("alice", world.PFGodmode)

	if err := handleGodMode(d, p, nil); err != nil {
		t.Fatal(err)
	}
	if !p.Physics.Godmode {
		t.Fatal("expected godmode to toggle on")
	}
	if err := handleGodMode(d, p, nil); err != nil {
		t.Fatal(err)
	}
	if p.Physics.Godmode {
		t.Fatal("expected a second toggle to turn it back off")
	}
}

func encodeSmileyBody(s uint8) []byte {
	b := wire.NewBuffer()
	b.WriteU8(s)
	return b.Bytes()
}

func TestHandleSmileyUpdatesPlayerState(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleSmiley(d, p, encodeSmileyBody(7)); err != nil {
		t.Fatal(err)
	}
	if p.Smiley != 7 {
		t.Fatalf("expected smiley to be recorded, got %d", p.Smiley)
	}
}

func TestHandleMediaRequestEnqueuesAndRepliesWithoutPanicking(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	b := wire.NewBuffer()
	_ = b.WriteStr16("sprite.png")
	_ = b.WriteStr16("")
	if err := handleMediaRequest(d, p, b.Bytes()); err != nil {
		t.Fatal(err)
	}
	d.mu.Lock()
	pending := d.peerPending[peer]
	d.mu.Unlock()
	if pending == nil {
		t.Fatal("expected a pending media request to be registered for the peer")
	}
}

func encodeAuthRequestChallengeBody(name string) []byte {
	b := wire.NewBuffer()
	b.WriteU8(authSubRequestChallenge)
	_ = b.WriteStr16(name)
	return b.Bytes()
}

func encodeAuthRespondBody(response []byte) []byte {
	b := wire.NewBuffer()
	b.WriteU8(authSubRespond)
	b.WriteRaw(response)
	return b.Bytes()
}

func TestHandleAuthUnregisteredNameIsReportedDirectly(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleAuth(d, p, encodeAuthRequestChallengeBody("nobody")); err != nil {
		t.Fatal(err)
	}
	d.challengesMu.Lock()
	_, pending := d.challenges[peer]
	d.challengesMu.Unlock()
	if pending {
		t.Fatal("expected no challenge to be issued for an unregistered name")
	}
}

func TestHandleAuthChallengeResponseRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	pwHash := auth.HashPassword("hunter2")
	if err := d.Auth.Save(store.Account{Name: "registeredName", PasswordHash: pwHash, Level: store.LevelRegistered}); err != nil {
		t.Fatal(err)
	}

	if err := handleAuth(d, p, encodeAuthRequestChallengeBody("registeredName")); err != nil {
		t.Fatal(err)
	}
	d.challengesMu.Lock()
	pending, ok := d.challenges[peer]
	d.challengesMu.Unlock()
	if !ok {
		t.Fatal("expected a challenge to be issued for a registered account")
	}

	response := auth.Combine(pwHash, pending.challenge)
	if err := handleAuth(d, p, encodeAuthRespondBody(response)); err != nil {
		t.Fatal(err)
	}
	if p.Name != "registeredName" {
		t.Fatalf("expected successful auth to rename the player to the account name, got %q", p.Name)
	}
}

func TestHandleAuthWrongResponseIsRejected(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	pwHash := auth.HashPassword("hunter2")
	if err := d.Auth.Save(store.Account{Name: "registeredName", PasswordHash: pwHash, Level: store.LevelRegistered}); err != nil {
		t.Fatal(err)
	}
	if err := handleAuth(d, p, encodeAuthRequestChallengeBody("registeredName")); err != nil {
		t.Fatal(err)
	}

	if err := handleAuth(d, p, encodeAuthRespondBody([]byte("not the right hash"))); err != nil {
		t.Fatal(err)
	}
	if p.Name == "registeredName" {
		t.Fatal("expected a wrong response to leave the player's name unchanged")
	}
}

func encodeFriendActionBody(sub uint8, target string) []byte {
	b := wire.NewBuffer()
	b.WriteU8(sub)
	_ = b.WriteStr16(target)
	return b.Bytes()
}

func TestHandleFriendActionFirstRequestIsPending(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleFriendAction(d, p, encodeFriendActionBody(0, "bob")); err != nil {
		t.Fatal(err)
	}
	f, err := d.Friends.Get("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if f.Status1 != store.FriendAccepted && f.Status2 != store.FriendAccepted {
		t.Fatalf("expected the requester's side to be accepted, got %+v", f)
	}
	if f.Status1 != store.FriendPending && f.Status2 != store.FriendPending {
		t.Fatalf("expected the target's side to be pending, got %+v", f)
	}
}

func TestHandleFriendActionSecondRequestAcceptsBothSides(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleFriendAction(d, p, encodeFriendActionBody(0, "bob")); err != nil {
		t.Fatal(err)
	}
	bob := &env.Player{Peer: transport.PeerID(2), Name: "bob"}
	if err := handleFriendAction(d, bob, encodeFriendActionBody(0, "alice")); err != nil {
		t.Fatal(err)
	}
	f, err := d.Friends.Get("alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if f.Status1 != store.FriendAccepted || f.Status2 != store.FriendAccepted {
		t.Fatalf("expected both sides to be accepted after a mutual request, got %+v", f)
	}
}

func TestHandleFriendActionRemove(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	joinRoom(t, d, peer, "alice", "Troom")
	p := mustPlayer(t, d, peer)

	if err := handleFriendAction(d, p, encodeFriendActionBody(0, "bob")); err != nil {
		t.Fatal(err)
	}
	if err := handleFriendAction(d, p, encodeFriendActionBody(1, "bob")); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Friends.Get("alice", "bob"); err != store.ErrNoSuchFriend {
		t.Fatalf("expected the relation to be removed, got err=%v", err)
	}
}
