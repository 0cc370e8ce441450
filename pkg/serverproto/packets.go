package serverproto

import (
	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/physics"
	"github.com/StoreStation/eeland/pkg/wire"
	"github.com/StoreStation/eeland/pkg/world"
)

// Packet2Client action codes. Only the reply/broadcast directions
// listed in spec.md §6.1 need their own codes; MediaList reuses
// ActionMediaRequest's slot on the wire (the action byte distinguishes
// direction by who sent it, matching the reference's single shared
// action-code space).
const (
	ClientHello      Action = 1
	ClientError      Action = 2
	ClientLobby      Action = 3
	ClientWorldData  Action = 4
	ClientJoin       Action = 5
	ClientLeave      Action = 6
	ClientMove       Action = 7
	ClientChat       Action = 8
	ClientPlaceBlock Action = 9
	ClientMediaList  Action = 13
	ClientAuth       Action = 14
)

// newOutgoing starts a little-endian buffer with action's u16 code
// already written, ready for the packet's own fields.
func newOutgoing(action Action) *wire.Buffer {
	b := wire.NewBuffer()
	b.WriteU16(uint16(action))
	return b
}

// writePhysics appends the six-float kinematic snapshot <physics> =
// px,py,vx,vy,ax,ay shared by Join and Move.
func writePhysics(b *wire.Buffer, p physics.Player) {
	b.WriteF32(float32(p.Pos.X))
	b.WriteF32(float32(p.Pos.Y))
	b.WriteF32(float32(p.Vel.X))
	b.WriteF32(float32(p.Vel.Y))
	b.WriteF32(float32(p.Acc.X))
	b.WriteF32(float32(p.Acc.Y))
}

func readPhysics(b *wire.Buffer) (physics.Player, error) {
	var p physics.Player
	var err error
	read := func(dst *float64) {
		if err != nil {
			return
		}
		var v float32
		v, err = b.ReadF32()
		*dst = float64(v)
	}
	read(&p.Pos.X)
	read(&p.Pos.Y)
	read(&p.Vel.X)
	read(&p.Vel.Y)
	read(&p.Acc.X)
	read(&p.Acc.Y)
	return p, err
}

// encodeHello builds Hello{u16 effective_ver; u32 peer_id}.
func encodeHello(effective uint16, peerID uint32) []byte {
	b := newOutgoing(ClientHello)
	b.WriteU16(effective)
	b.WriteU32(peerID)
	return b.Bytes()
}

// encodeError builds Error{string16 text}.
func encodeError(text string) []byte {
	b := newOutgoing(ClientError)
	_ = b.WriteStr16(text)
	return b.Bytes()
}

// lobbyEntry is one world summarized in a Lobby packet.
type lobbyEntry struct {
	WorldID string
	Width   int
	Height  int
	Title   string
	Owner   string
	Online  int
	Plays   int
}

// encodeLobby builds Lobby{(u8=1, string16 world_id, u16 W, u16 H,
// string16 title, string16 owner, u16 online, u32 plays)*, u8=0}.
func encodeLobby(entries []lobbyEntry) []byte {
	b := newOutgoing(ClientLobby)
	for _, e := range entries {
		b.WriteU8(1)
		_ = b.WriteStr16(e.WorldID)
		b.WriteU16(uint16(e.Width))
		b.WriteU16(uint16(e.Height))
		_ = b.WriteStr16(e.Title)
		_ = b.WriteStr16(e.Owner)
		b.WriteU16(uint16(e.Online))
		b.WriteU32(uint32(e.Plays))
	}
	b.WriteU8(0)
	return b.Bytes()
}

// worldDataTerminator is the sentinel byte closing a successful
// WorldData payload, per spec.md §6.1.
const worldDataTerminator = 0xF8

// encodeWorldData builds WorldData{u8=1, u16 W, u16 H, bid_t
// blocks[W*H], u8=0xF8}, reading the foreground layer only (the layer a
// joining client paints first; the background layer streams in via the
// normal PlaceBlock broadcast backlog generated by MarkAllModified).
func encodeWorldData(w *world.World) []byte {
	width, height := w.Size()
	b := newOutgoing(ClientWorldData)
	b.WriteU8(1)
	b.WriteU16(uint16(width))
	b.WriteU16(uint16(height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cell, _ := w.GetBlock(world.Pos{X: x, Y: y}, world.LayerForeground)
			b.WriteU16(uint16(cell.ID))
		}
	}
	b.WriteU8(worldDataTerminator)
	return b.Bytes()
}

// encodeWorldDataRejected builds WorldData{u8=0}, the "return to lobby"
// signal sent when Join names an unknown or invalid world type.
func encodeWorldDataRejected() []byte {
	b := newOutgoing(ClientWorldData)
	b.WriteU8(0)
	return b.Bytes()
}

// encodeJoin builds Join{peer_id, string16 name, <physics>}.
func encodeJoin(peerID uint32, name string, p physics.Player) []byte {
	b := newOutgoing(ClientJoin)
	b.WriteU32(peerID)
	_ = b.WriteStr16(name)
	writePhysics(b, p)
	return b.Bytes()
}

// encodeLeave builds Leave{peer_id}.
func encodeLeave(peerID uint32) []byte {
	b := newOutgoing(ClientLeave)
	b.WriteU32(peerID)
	return b.Bytes()
}

// moveEntry is one player's kinematic snapshot batched into a Move packet.
type moveEntry struct {
	PeerID uint32
	P      physics.Player
}

// encodeMove builds Move{(u8=1, peer_id, <physics>)*, u8=0}.
func encodeMove(entries []moveEntry) []byte {
	b := newOutgoing(ClientMove)
	for _, e := range entries {
		b.WriteU8(1)
		b.WriteU32(e.PeerID)
		writePhysics(b, e.P)
	}
	b.WriteU8(0)
	return b.Bytes()
}

// encodeChat builds Chat{peer_id, string16 text}.
func encodeChat(peerID uint32, text string) []byte {
	b := newOutgoing(ClientChat)
	b.WriteU32(peerID)
	_ = b.WriteStr16(text)
	return b.Bytes()
}

// placeBlockEntry is one positioned write batched into a PlaceBlock packet.
type placeBlockEntry struct {
	PeerID uint32
	Pos    world.Pos
	ID     blocks.ID
	Param1 uint8
}

// encodePlaceBlock builds PlaceBlock{(u8=1, peer_id, u16 x, u16 y,
// bid_t id, u8 param1)*, u8=0}.
func encodePlaceBlock(entries []placeBlockEntry) []byte {
	b := newOutgoing(ClientPlaceBlock)
	for _, e := range entries {
		b.WriteU8(1)
		b.WriteU32(e.PeerID)
		b.WriteU16(uint16(e.Pos.X))
		b.WriteU16(uint16(e.Pos.Y))
		b.WriteU16(uint16(e.ID))
		b.WriteU8(e.Param1)
	}
	b.WriteU8(0)
	return b.Bytes()
}

// readHelloPacket decodes client Hello{u16 proto_ver, u16 proto_min, string16 nickname}.
func readHelloPacket(b *wire.Buffer) (protoVer, protoMin uint16, nickname string, err error) {
	if protoVer, err = b.ReadU16(); err != nil {
		return
	}
	if protoMin, err = b.ReadU16(); err != nil {
		return
	}
	nickname, err = b.ReadStr16()
	return
}

// readJoinPacket decodes client Join{string16 world_id}.
func readJoinPacket(b *wire.Buffer) (string, error) {
	return b.ReadStr16()
}

// readChatPacket decodes client Chat{string16 text}.
func readChatPacket(b *wire.Buffer) (string, error) {
	return b.ReadStr16()
}

// clientPlaceBlockEntry is one write requested by a client's PlaceBlock packet.
type clientPlaceBlockEntry struct {
	Pos    world.Pos
	ID     blocks.ID
	Param1 uint8
}

// readPlaceBlockPacket decodes client PlaceBlock{(u8=1, u16 x, u16 y,
// bid_t id, u8 param1)*, u8=0}.
func readPlaceBlockPacket(b *wire.Buffer) ([]clientPlaceBlockEntry, error) {
	var out []clientPlaceBlockEntry
	for {
		tag, err := b.ReadU8()
		if err != nil {
			return nil, err
		}
		if tag == 0 {
			return out, nil
		}
		x, err := b.ReadU16()
		if err != nil {
			return nil, err
		}
		y, err := b.ReadU16()
		if err != nil {
			return nil, err
		}
		id, err := b.ReadU16()
		if err != nil {
			return nil, err
		}
		param1, err := b.ReadU8()
		if err != nil {
			return nil, err
		}
		out = append(out, clientPlaceBlockEntry{Pos: world.Pos{X: int(x), Y: int(y)}, ID: blocks.ID(id), Param1: param1})
	}
}

// Auth subcodes, carried as the first byte of the Auth packet's body in
// both directions, per the challenge/response flow spec.md §4.9
// describes but does not frame on the wire.
const (
	authSubRequestChallenge uint8 = 0
	authSubRespond          uint8 = 1
	authSubChallenge        uint8 = 0 // server->client
	authSubResult           uint8 = 1 // server->client
)

// encodeAuthChallenge builds the server's Auth{u8=0, []byte challenge}.
func encodeAuthChallenge(challenge []byte) []byte {
	b := newOutgoing(ClientAuth)
	b.WriteU8(authSubChallenge)
	b.WriteRaw(challenge)
	return b.Bytes()
}

// encodeAuthResult builds the server's Auth{u8=1, u8 status}.
func encodeAuthResult(status uint8) []byte {
	b := newOutgoing(ClientAuth)
	b.WriteU8(authSubResult)
	b.WriteU8(status)
	return b.Bytes()
}
