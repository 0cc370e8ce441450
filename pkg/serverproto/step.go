package serverproto

import (
	"time"

	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/world"
)

// stepInterval is the server tick period driving both the physics
// script OnStep hook and the PlaceBlock broadcast drain, per spec.md
// §4.7.3.
const stepInterval = 50 * time.Millisecond

// placeBlockBatchLimit caps how many queued writes one broadcast packet
// carries before a room's backlog spills into a second packet, keeping
// each send under transport.MTU.
const placeBlockBatchLimit = 200

// Run drives the step loop until ctx-equivalent stop is closed: each
// tick it advances every room's script clock and flushes its queued
// block writes to everyone present. Ordering is serialized per world
// only; spec.md §4.7.3 makes no cross-world ordering guarantee.
func (d *Dispatcher) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(stepInterval)
	defer ticker.Stop()

	var elapsed float64
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			_ = now
			elapsed += stepInterval.Seconds()
			d.step(elapsed)
		}
	}
}

func (d *Dispatcher) step(elapsed float64) {
	d.mu.Lock()
	rooms := make([]*roomState, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	for _, room := range rooms {
		room.script.OnStep(elapsed)
		d.flushRoom(room)
	}
}

// flushRoom drains room's queued block writes and broadcasts them in
// MTU-sized batches, reliably, to every player present.
func (d *Dispatcher) flushRoom(room *roomState) {
	pending := room.world.DrainProcQueue()
	if len(pending) == 0 {
		return
	}

	batch := make([]placeBlockEntry, 0, placeBlockBatchLimit)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		pkt := encodePlaceBlock(batch)
		d.Env.ForEachInWorld(room.world, func(other *env.Player) {
			d.send(other.Peer, transport.ChannelEvents, pkt)
		})
		batch = batch[:0]
	}

	for pos, bu := range pending {
		entry := placeBlockEntry{Pos: pos, ID: bu.Cell.ID, Param1: paramByteOf(bu.Params)}
		batch = append(batch, entry)
		if len(batch) >= placeBlockBatchLimit {
			flush()
		}
	}
	flush()
}

// paramByteOf extracts the single byte this wire packet's param1 field
// can carry, matching the generalisation handlePlaceBlock already makes:
// only ParamsU8 round-trips here, every richer payload is dropped from
// the broadcast (script-side readers use GetParams directly instead).
func paramByteOf(p world.BlockParams) uint8 {
	if p.Type == world.ParamsU8 {
		return p.U8
	}
	return 0
}
