package serverproto

import (
	"testing"

	"go.uber.org/zap"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/media"
	"github.com/StoreStation/eeland/pkg/store"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/wire"
)

// newTestBlocks returns a Manager with every default pack registered,
// the same setup pkg/world and pkg/store's own tests use.
func newTestBlocks(t *testing.T) *blocks.Manager {
	t.Helper()
	m := blocks.NewManager()
	if err := m.DoPackRegistration(); err != nil {
		t.Fatal(err)
	}
	m.DoPackPostprocess()
	return m
}

// newTestDispatcher wires a Dispatcher against an in-memory sqlite DB
// (world/auth/friend stores all live) and an unstarted Transport, so
// handler tests exercise real persistence and permission logic without a
// network. Sends to peers with no registered transport connection fail
// with ErrUnknownPeer and are swallowed by d.send's debug log, which is
// fine: these tests assert on room/world state, not wire bytes.
func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	worldStore, err := store.NewWorldStore(db)
	if err != nil {
		t.Fatal(err)
	}
	authStore, err := store.NewAuthStore(db)
	if err != nil {
		t.Fatal(err)
	}
	friendStore, err := store.NewFriendStore(db)
	if err != nil {
		t.Fatal(err)
	}

	mediaMgr := media.NewManager(t.TempDir(), zap.NewNop())
	tp := transport.New(transport.RoleServer, 64, zap.NewNop())

	return New(newTestBlocks(t), worldStore, authStore, friendStore, mediaMgr, tp, zap.NewNop())
}

// encodeHelloBody builds a client Hello packet body (post action-code),
// mirroring readHelloPacket's field order.
func encodeHelloBody(ver, min uint16, nickname string) []byte {
	b := wire.NewBuffer()
	b.WriteU16(ver)
	b.WriteU16(min)
	_ = b.WriteStr16(nickname)
	return b.Bytes()
}

// encodeJoinBody builds a client Join packet body.
func encodeJoinBody(worldID string) []byte {
	b := wire.NewBuffer()
	_ = b.WriteStr16(worldID)
	return b.Bytes()
}

// encodeChatBody builds a client Chat packet body.
func encodeChatBody(text string) []byte {
	b := wire.NewBuffer()
	_ = b.WriteStr16(text)
	return b.Bytes()
}

// mustPlayer fetches peer's Player record, failing the test if absent.
func mustPlayer(t *testing.T, d *Dispatcher, peer transport.PeerID) *env.Player {
	t.Helper()
	p, _, ok := d.Env.Get(peer)
	if !ok {
		t.Fatalf("peer %d not found", peer)
	}
	return p
}

// joinRoom drives a peer through connect+Hello+Join against worldID,
// returning the resulting room for direct assertions. worldID should
// start with 'T' (temporary draw room) so no WorldStore round trip is
// needed.
func joinRoom(t *testing.T, d *Dispatcher, peer transport.PeerID, name, worldID string) *roomState {
	t.Helper()
	d.OnPeerConnected(peer)
	if err := handleHello(d, mustPlayer(t, d, peer), encodeHelloBody(ProtocolVersion, ProtocolVersionMin, name)); err != nil {
		t.Fatal(err)
	}
	p := mustPlayer(t, d, peer)
	if err := handleJoin(d, p, encodeJoinBody(worldID)); err != nil {
		t.Fatal(err)
	}
	room, ok := d.roomOf(p.World)
	if !ok {
		t.Fatalf("peer %d did not end up in a room", peer)
	}
	return room
}
