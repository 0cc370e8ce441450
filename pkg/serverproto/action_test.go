package serverproto

import (
	"testing"

	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/transport"
)

func TestDispatchTableCoversEveryActionCode(t *testing.T) {
	for code := minActionCode; code <= maxActionCode; code++ {
		if _, ok := dispatchTable[code]; !ok {
			t.Fatalf("action code %d has no dispatch entry", code)
		}
	}
}

func TestSatisfiesStateInvalidAcceptsAny(t *testing.T) {
	s := actionSpec{minState: env.StateInvalid}
	for _, have := range []env.ConnState{env.StateInvalid, env.StateIdle, env.StateWorldJoin, env.StateWorldPlay} {
		if !s.satisfies(have) {
			t.Fatalf("StateInvalid-gated action should accept state %v", have)
		}
	}
}

func TestSatisfiesRequiresAtLeastMinState(t *testing.T) {
	s := actionSpec{minState: env.StateWorldPlay}
	if s.satisfies(env.StateIdle) {
		t.Fatal("expected StateIdle to fail a StateWorldPlay-gated action")
	}
	if !s.satisfies(env.StateWorldPlay) {
		t.Fatal("expected StateWorldPlay to satisfy a StateWorldPlay-gated action")
	}
}

func TestProcessPacketDropsUnknownAction(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	d.OnPeerConnected(peer)
	if err := d.ProcessPacket(peer, []byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("unexpected error on unknown action: %v", err)
	}
}

func TestProcessPacketDropsBelowMinState(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	d.OnPeerConnected(peer)

	data := append([]byte{byte(ActionChat), byte(ActionChat >> 8)}, encodeChatBody("hi")...)
	if err := d.ProcessPacket(peer, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// peer is still Idle, never joined a world; Chat must not panic or
	// crash on a nil p.World, and must simply be dropped.
	p := mustPlayer(t, d, peer)
	if p.World != nil {
		t.Fatal("expected peer's world to remain nil")
	}
}

func TestProcessPacketDropsShortPacket(t *testing.T) {
	d := newTestDispatcher(t)
	peer := transport.PeerID(1)
	d.OnPeerConnected(peer)
	if err := d.ProcessPacket(peer, []byte{0x01}); err != nil {
		t.Fatalf("unexpected error on short packet: %v", err)
	}
}
