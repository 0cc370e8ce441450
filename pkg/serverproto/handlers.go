package serverproto

import (
	"time"

	"go.uber.org/zap"

	"github.com/StoreStation/eeland/pkg/auth"
	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/media"
	"github.com/StoreStation/eeland/pkg/physics"
	"github.com/StoreStation/eeland/pkg/store"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/wire"
	"github.com/StoreStation/eeland/pkg/world"
)

func handleGetLobby(d *Dispatcher, p *env.Player, data []byte) error {
	d.mu.Lock()
	entries := make([]lobbyEntry, 0, len(d.rooms))
	for id, room := range d.rooms {
		w, h := room.world.Size()
		entries = append(entries, lobbyEntry{
			WorldID: id, Width: w, Height: h,
			Title:  room.world.Meta.Title,
			Owner:  room.world.Meta.Owner,
			Online: room.world.Meta.OnlineCount,
			Plays:  room.world.Meta.Plays,
		})
	}
	d.mu.Unlock()
	d.send(p.Peer, transport.ChannelEvents, encodeLobby(entries))
	return nil
}

// antiCheatSnapThreshold and antiCheatKickThreshold are spec.md §4.6's
// "~200"/"~600" policy values, not contract: a player whose decaying
// Suspicion score crosses the first gets its position snapped back, the
// second gets disconnected.
const (
	antiCheatSnapThreshold = 200
	antiCheatKickThreshold = 600
)

// handleMove decodes the client's reported kinematic snapshot, replays
// it through the anti-cheat check, updates the player's persistent
// suspicion score, and rebroadcasts the (possibly corrected) snapshot
// unreliably to the rest of the room. Per spec.md §5, Move is sent
// unreliable; a later PlaceBlock may overtake an earlier Move in
// transit, which is an accepted inconsistency, not a bug to guard
// against here.
func handleMove(d *Dispatcher, p *env.Player, data []byte) error {
	reported, err := readPhysics(wire.NewBufferFrom(data))
	if err != nil {
		return nil
	}
	room, ok := d.roomOf(p.World)
	if !ok {
		return nil
	}

	reported.Godmode = p.Physics.Godmode
	reported.Coins = p.Coins
	reported.LastPos = p.LastPos

	now := d.Env.Now()
	dtime := (now - p.LastMoveAt).Seconds()
	p.LastMoveAt = now

	// decay the running score by elapsed time first, mirroring
	// RemotePlayer::runAnticheat's "subtract dtime, or reset to zero if
	// dtime would overshoot" step, before this packet's own penalty (if
	// any) is added back on top.
	if dtime > p.Suspicion {
		p.Suspicion = 0
	} else {
		p.Suspicion -= dtime
	}

	result := physics.CheckMove(reported, room.world, room.script, dtime)
	p.Suspicion += result.Suspicion

	if p.Suspicion > antiCheatKickThreshold {
		d.log.Info("move anti-cheat kick threshold exceeded",
			zap.String("player", p.Name), zap.Float64("suspicion", p.Suspicion))
		d.Transport.Disconnect(p.Peer)
		return nil
	}
	if p.Suspicion > antiCheatSnapThreshold {
		// teleport the reported position back to the player's last
		// known-good position instead of trusting the client's claim.
		reported.Pos = physics.Vec2{X: float64(p.LastPos.X), Y: float64(p.LastPos.Y)}
		reported.Vel = physics.Vec2{}
	}

	p.Physics = reported
	p.LastPos = world.Pos{X: int(reported.Pos.X), Y: int(reported.Pos.Y)}

	pkt := encodeMove([]moveEntry{{PeerID: uint32(p.Peer), P: reported}})
	d.Env.ForEachInWorld(room.world, func(other *env.Player) {
		if other.Peer == p.Peer {
			return
		}
		if err := d.Transport.Send(other.Peer, transport.Flags(transport.ChannelEvents)|transport.FlagUnreliable, pkt); err != nil {
			d.log.Debug("move send failed", zap.Error(err))
		}
	})
	return nil
}

// handleChat sanitises, rate-limits, broadcasts, and records to history
// a chat line, or routes it to the command dispatcher if it begins with
// the server command prefix. Per spec.md §8's boundary behaviour, any
// ASCII control character anywhere in the message is rejected outright.
func handleChat(d *Dispatcher, p *env.Player, data []byte) error {
	text, err := readChatPacket(wire.NewBufferFrom(data))
	if err != nil {
		return nil
	}
	for _, r := range text {
		if r < 0x20 {
			d.send(p.Peer, transport.ChannelEvents, encodeError("chat message contains a control character"))
			return nil
		}
	}
	if len(text) == 0 {
		return nil
	}
	if text[0] == commandPrefix {
		d.runCommand(p, text)
		return nil
	}

	room, ok := d.roomOf(p.World)
	if !ok {
		return nil
	}
	if room.world.Meta.GetPlayerFlags(p.Name).Check(world.PFMuted) {
		return nil
	}
	if !d.Limits.For(uint32(p.Peer)).Chat.Allow() {
		return nil
	}

	room.world.Meta.PushChat(p.Name, text, time.Now())
	pkt := encodeChat(uint32(p.Peer), text)
	d.Env.ForEachInWorld(room.world, func(other *env.Player) {
		d.send(other.Peer, transport.ChannelBulk, pkt)
	})
	return nil
}

// handlePlaceBlock enqueues every requested write whose author holds an
// edit flag, generalizing the reference's simple u8 param1 to the
// block's registered ParamType: ParamU8 blocks store param1 directly,
// ParamNone blocks carry no payload, and every richer param type (text,
// teleporter) is left untouched by this bulk path — those are only
// settable through the world-side Lua API or import, matching this
// wire packet's single-byte param budget.
func handlePlaceBlock(d *Dispatcher, p *env.Player, data []byte) error {
	room, ok := d.roomOf(p.World)
	if !ok {
		return nil
	}
	if !room.world.Meta.GetPlayerFlags(p.Name).Any(world.PFMaskEdit) {
		return nil
	}
	if !d.Limits.For(uint32(p.Peer)).Blocks.Allow() {
		return nil
	}

	entries, err := readPlaceBlockPacket(wire.NewBufferFrom(data))
	if err != nil {
		return nil
	}

	for _, e := range entries {
		props, ok := d.Blocks.GetProps(e.ID)
		if !ok {
			continue
		}
		layer := world.LayerForeground
		if props.Draw == blocks.DrawBackground {
			layer = world.LayerBackground
		}
		var params world.BlockParams
		if props.Param == blocks.ParamU8 {
			params = world.BlockParams{Type: world.ParamsU8, U8: e.Param1}
		}
		if _, err := room.world.UpdateBlock(world.BlockUpdate{
			Pos: e.Pos, Layer: layer, Cell: world.Cell{ID: e.ID}, Params: params,
		}); err != nil {
			continue
		}
		room.script.OnBlockPlaced(e.ID)
	}
	return nil
}

// doorIDsByKey and gateIDsByKey pair each key colour with the door/gate
// IDs it drives, indexed the same way handleOnTouchBlock derives idx.
// Doors and gates use deliberately inverted Tiles arrays (see
// blocks/default_packs.go), so driving both with the same tile value
// naturally opens the door and closes the gate together, or vice versa.
var (
	doorIDsByKey = [3]blocks.ID{blocks.IDDoorR, blocks.IDDoorG, blocks.IDDoorB}
	gateIDsByKey = [3]blocks.ID{blocks.IDGateR, blocks.IDGateG, blocks.IDGateB}
)

// handleOnTouchBlock applies key/kill-gate triggers: touching a "keys"
// pack block flips that colour's gate timer and flips every paired
// door/gate block's tile accordingly, so the toggle has a physical
// effect; every other pack is a no-op here since ordinary collision
// physics already handles movement blocks via pkg/physics's step/collide
// callbacks.
func handleOnTouchBlock(d *Dispatcher, p *env.Player, data []byte) error {
	b := wire.NewBufferFrom(data)
	x, err := b.ReadU16()
	if err != nil {
		return nil
	}
	y, err := b.ReadU16()
	if err != nil {
		return nil
	}
	room, ok := d.roomOf(p.World)
	if !ok {
		return nil
	}
	cell, ok := room.world.GetBlock(world.Pos{X: int(x), Y: int(y)}, world.LayerForeground)
	if !ok {
		return nil
	}
	props, ok := d.Blocks.GetProps(cell.ID)
	if !ok || props.Pack != "keys" {
		return nil
	}
	idx := int(cell.Tile) % len(room.world.Meta.Keys)
	room.world.Meta.Keys[idx] = !room.world.Meta.Keys[idx]

	var tile uint8
	if room.world.Meta.Keys[idx] {
		tile = 1
	}
	room.world.SetBlockTiles(world.EntireWorld(), doorIDsByKey[idx], tile)
	room.world.SetBlockTiles(world.EntireWorld(), gateIDsByKey[idx], tile)
	return nil
}

// handleGodMode toggles the requesting player's local godmode flag,
// gated on holding a godmode permission (persistent or session-granted).
func handleGodMode(d *Dispatcher, p *env.Player, data []byte) error {
	room, ok := d.roomOf(p.World)
	if !ok {
		return nil
	}
	if !room.world.Meta.GetPlayerFlags(p.Name).Any(world.PFMaskGodmode) {
		return nil
	}
	p.Physics.Godmode = !p.Physics.Godmode
	return nil
}

// smileyAction is Packet2Client's Smiley broadcast code, not named in
// spec.md §6.1's non-exhaustive notable-packet list.
const smileyAction Action = 15

func encodeSmiley(peerID uint32, smiley uint8) []byte {
	b := newOutgoing(smileyAction)
	b.WriteU32(peerID)
	b.WriteU8(smiley)
	return b.Bytes()
}

func handleSmiley(d *Dispatcher, p *env.Player, data []byte) error {
	b := wire.NewBufferFrom(data)
	smiley, err := b.ReadU8()
	if err != nil {
		return nil
	}
	p.Smiley = smiley
	room, ok := d.roomOf(p.World)
	if !ok {
		return nil
	}
	pkt := encodeSmiley(uint32(p.Peer), smiley)
	d.Env.ForEachInWorld(room.world, func(other *env.Player) {
		if other.Peer != p.Peer {
			d.send(other.Peer, transport.ChannelEvents, pkt)
		}
	})
	return nil
}

// handleMediaRequest enqueues the requested asset names for this peer
// and immediately attempts a first drain, matching the reference's
// writeMediaData being driven off the same request rather than a
// separate tick.
func handleMediaRequest(d *Dispatcher, p *env.Player, data []byte) error {
	if d.Media == nil {
		return nil
	}
	names, err := media.ReadMediaRequest(wire.NewBufferFrom(data))
	if err != nil {
		return nil
	}

	d.mu.Lock()
	pending := d.peerPending[p.Peer]
	if pending == nil {
		pending = &media.PendingRequest{}
		d.peerPending[p.Peer] = pending
	}
	d.mu.Unlock()

	pending.Enqueue(names)

	out := wire.NewBuffer()
	out.WriteU16(uint16(ClientMediaList))
	if err := d.Media.WriteMediaReceive(pending, out, time.Now()); err != nil {
		return nil
	}
	d.send(p.Peer, transport.ChannelBulk, out.Bytes())
	return nil
}

// handleAuth implements the challenge/response flow from spec.md §4.9:
// RequestChallenge looks up the named account and replies with a fresh
// random challenge (or SignedIn-as-guest immediately if unregistered);
// Respond verifies the combined hash against the stored password.
func handleAuth(d *Dispatcher, p *env.Player, data []byte) error {
	b := wire.NewBufferFrom(data)
	sub, err := b.ReadU8()
	if err != nil {
		return nil
	}

	switch sub {
	case authSubRequestChallenge:
		name, err := b.ReadStr16()
		if err != nil || d.Auth == nil {
			d.send(p.Peer, transport.ChannelEvents, encodeAuthResult(uint8(auth.Unregistered)))
			return nil
		}
		account, err := d.Auth.Load(name)
		if err != nil {
			d.send(p.Peer, transport.ChannelEvents, encodeAuthResult(uint8(auth.Unregistered)))
			return nil
		}
		challenge, err := auth.GenerateChallenge()
		if err != nil {
			return nil
		}
		d.challengesMu.Lock()
		d.challenges[p.Peer] = pendingAuth{challenge: challenge, name: account.Name}
		d.challengesMu.Unlock()
		d.send(p.Peer, transport.ChannelEvents, encodeAuthChallenge(challenge))

	case authSubRespond:
		response, err := b.ReadRaw(b.Remaining())
		if err != nil {
			return nil
		}
		d.challengesMu.Lock()
		pending, ok := d.challenges[p.Peer]
		delete(d.challenges, p.Peer)
		d.challengesMu.Unlock()
		if !ok || d.Auth == nil {
			d.send(p.Peer, transport.ChannelEvents, encodeAuthResult(uint8(auth.Unauthenticated)))
			return nil
		}
		account, err := d.Auth.Load(pending.name)
		if err != nil {
			d.send(p.Peer, transport.ChannelEvents, encodeAuthResult(uint8(auth.Unauthenticated)))
			return nil
		}
		if !auth.Verify(account.PasswordHash, pending.challenge, response) {
			d.send(p.Peer, transport.ChannelEvents, encodeAuthResult(uint8(auth.Unauthenticated)))
			return nil
		}
		p.Name = account.Name
		d.send(p.Peer, transport.ChannelEvents, encodeAuthResult(uint8(auth.SignedIn)))
	}
	return nil
}

// handleFriendAction mutates the social graph via d.Friends, replying
// with a system Error message on a disabled/missing friend store rather
// than silently dropping the request, since this is an explicit player
// action (not a passive broadcast).
func handleFriendAction(d *Dispatcher, p *env.Player, data []byte) error {
	b := wire.NewBufferFrom(data)
	sub, err := b.ReadU8()
	if err != nil {
		return nil
	}
	target, err := b.ReadStr16()
	if err != nil || target == "" {
		return nil
	}
	if d.Friends == nil {
		d.send(p.Peer, transport.ChannelEvents, encodeError("friends are not available on this server"))
		return nil
	}

	switch sub {
	case 0: // request / accept
		_, err := d.Friends.Get(p.Name, target)
		switch err {
		case store.ErrNoSuchFriend:
			_ = d.Friends.Set(p.Name, store.FriendAccepted, target, store.FriendPending)
		case nil:
			_ = d.Friends.Set(p.Name, store.FriendAccepted, target, store.FriendAccepted)
		}
	case 1: // remove
		_ = d.Friends.Remove(p.Name, target)
	}
	return nil
}
