// Package env implements the Environment: the peer-to-player directory
// and connection-state lattice every other server package dispatches
// through. See SPEC_FULL.md [MODULE env]. Grounded on spec.md §5's
// players_lock-guards-the-peer-map contract and the teacher's
// Server{mu sync.RWMutex; players map[int32]*Player} shape in
// pkg/server/server.go.
package env

import (
	"sync"
	"time"

	"github.com/StoreStation/eeland/pkg/physics"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/world"
)

// ConnState is a peer's position in the §4.7 state lattice.
type ConnState int

const (
	StateInvalid ConnState = iota
	StateIdle
	StateWorldJoin
	StateWorldPlay
)

// Player is the server-side record for one connected peer: identity,
// physics state, current world, and script-event inbox. Grounded on
// spec.md §3's Player data model.
type Player struct {
	Peer     transport.PeerID
	Name     string
	DataVersion uint16

	World *world.World // nil until WorldJoin

	Physics physics.Player

	Smiley   uint8
	Coins    int
	LastPos  world.Pos // for teleporter no-loop detection

	// LastMoveAt is the Environment-relative instant of this player's
	// previous Move packet, the baseline CheckMove's replay dtime is
	// measured against.
	LastMoveAt time.Duration

	// Suspicion is the persistent, decaying anti-cheat score
	// RemotePlayer::cheat_probability mirrors: it accumulates CheckMove's
	// per-packet penalty and decays by elapsed dtime otherwise, per
	// spec.md §4.6.
	Suspicion float64

	PendingScriptEvents []world.ScriptEvent
}

// Environment is the process-wide peer directory. players_lock must be
// held before acquiring any individual World's mutex, never the reverse
// (spec.md §5's lock-ordering invariant).
type Environment struct {
	playersLock sync.RWMutex
	peers       map[transport.PeerID]*Player
	states      map[transport.PeerID]ConnState

	startedAt time.Time
}

// New creates an empty Environment.
func New() *Environment {
	return &Environment{
		peers:     make(map[transport.PeerID]*Player),
		states:    make(map[transport.PeerID]ConnState),
		startedAt: time.Now(),
	}
}

// Now returns elapsed server uptime, the tick clock other packages key
// timers off of (gate timers, rate-limit buckets' reference instant).
func (e *Environment) Now() time.Duration { return time.Since(e.startedAt) }

// AddPeer registers a newly connected peer in StateIdle.
func (e *Environment) AddPeer(id transport.PeerID) *Player {
	e.playersLock.Lock()
	defer e.playersLock.Unlock()
	p := &Player{Peer: id}
	e.peers[id] = p
	e.states[id] = StateIdle
	return p
}

// RemovePeer drops a disconnected peer's state entirely.
func (e *Environment) RemovePeer(id transport.PeerID) {
	e.playersLock.Lock()
	defer e.playersLock.Unlock()
	delete(e.peers, id)
	delete(e.states, id)
}

// Get returns the Player for id and its current state, if connected.
func (e *Environment) Get(id transport.PeerID) (*Player, ConnState, bool) {
	e.playersLock.RLock()
	defer e.playersLock.RUnlock()
	p, ok := e.peers[id]
	if !ok {
		return nil, StateInvalid, false
	}
	return p, e.states[id], true
}

// SetState transitions id to state. Returns false if id is unknown.
func (e *Environment) SetState(id transport.PeerID, state ConnState) bool {
	e.playersLock.Lock()
	defer e.playersLock.Unlock()
	if _, ok := e.peers[id]; !ok {
		return false
	}
	e.states[id] = state
	return true
}

// IsNameOnline reports whether name (case-folded) already belongs to a
// connected peer, for the Hello handshake's duplicate-nickname rejection.
func (e *Environment) IsNameOnline(name string) bool {
	folded := foldName(name)
	e.playersLock.RLock()
	defer e.playersLock.RUnlock()
	for _, p := range e.peers {
		if foldName(p.Name) == folded {
			return true
		}
	}
	return false
}

func foldName(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// ForEachInWorld calls fn for every connected player currently joined to w.
func (e *Environment) ForEachInWorld(w *world.World, fn func(*Player)) {
	e.playersLock.RLock()
	defer e.playersLock.RUnlock()
	for _, p := range e.peers {
		if p.World == w {
			fn(p)
		}
	}
}

// Count returns the number of connected peers.
func (e *Environment) Count() int {
	e.playersLock.RLock()
	defer e.playersLock.RUnlock()
	return len(e.peers)
}
