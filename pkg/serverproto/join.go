package serverproto

import (
	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/media"
	"github.com/StoreStation/eeland/pkg/script"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/wire"
	"github.com/StoreStation/eeland/pkg/world"
)

// findOrCreateRoom returns the live room for worldID, creating and (if
// persistent) loading it on first reference. Returns ok=false for an
// unrecognised first-character type tag, per spec.md §4.7.2.
func (d *Dispatcher) findOrCreateRoom(worldID string) (*roomState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if room, ok := d.rooms[worldID]; ok {
		return room, true
	}
	if world.IDToType(worldID) == world.TypeInvalid {
		return nil, false
	}

	meta := world.NewMeta(worldID, "")
	w := world.NewWorld(d.Blocks, meta)

	loaded := false
	if d.Worlds != nil && world.IDToType(worldID) == world.TypePersistent {
		if err := d.Worlds.Load(w); err == nil {
			loaded = true
		}
	}
	if !loaded {
		if err := w.CreateDummy(world.MinSize*4, world.MinSize*4); err != nil {
			return nil, false
		}
	}

	host := script.New(d.Blocks, w, d.Media, d.log)
	room := &roomState{world: w, script: host, pending: make(map[transport.PeerID]*media.PendingRequest)}
	d.rooms[worldID] = room
	return room, true
}

// handleJoin implements spec.md §4.7.2: locate-or-create the world,
// reply WorldData, move the peer to WorldPlay, and exchange Join
// broadcasts between the newcomer and everyone already present.
func handleJoin(d *Dispatcher, p *env.Player, data []byte) error {
	worldID, err := readJoinPacket(wire.NewBufferFrom(data))
	if err != nil {
		return nil
	}

	room, ok := d.findOrCreateRoom(worldID)
	if !ok {
		d.send(p.Peer, transport.ChannelEvents, encodeWorldDataRejected())
		return nil
	}

	d.send(p.Peer, transport.ChannelEvents, encodeWorldData(room.world))

	p.World = room.world
	p.LastPos = world.Pos{}
	p.LastMoveAt = d.Env.Now()
	room.world.Meta.OnlineCount++
	room.world.Meta.Plays++
	d.Env.SetState(p.Peer, env.StateWorldPlay)

	joinPkt := encodeJoin(uint32(p.Peer), p.Name, p.Physics)

	d.Env.ForEachInWorld(room.world, func(other *env.Player) {
		if other.Peer == p.Peer {
			return
		}
		// Tell everyone already present about the newcomer...
		d.send(other.Peer, transport.ChannelEvents, joinPkt)
		// ...and relay every existing player's Join back to the
		// newcomer, so it discovers who else is in the room.
		d.send(p.Peer, transport.ChannelEvents, encodeJoin(uint32(other.Peer), other.Name, other.Physics))
	})

	return nil
}

// leaveWorld removes p from its current room, decrements the online
// counter, and broadcasts Leave to everyone remaining. Safe to call with
// p.World == nil (a no-op).
func (d *Dispatcher) leaveWorld(p *env.Player, peer transport.PeerID) {
	w := p.World
	if w == nil {
		return
	}
	w.Meta.OnlineCount--
	p.World = nil

	leavePkt := encodeLeave(uint32(peer))
	d.Env.ForEachInWorld(w, func(other *env.Player) {
		if other.Peer == peer {
			return
		}
		d.send(other.Peer, transport.ChannelEvents, leavePkt)
	})
}

// handleLeave implements action 5: the peer returns to Idle, still
// connected, free to Join again.
func handleLeave(d *Dispatcher, p *env.Player, data []byte) error {
	d.leaveWorld(p, p.Peer)
	d.Env.SetState(p.Peer, env.StateIdle)
	return nil
}
