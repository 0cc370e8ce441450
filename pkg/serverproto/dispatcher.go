package serverproto

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/media"
	"github.com/StoreStation/eeland/pkg/ratelimit"
	"github.com/StoreStation/eeland/pkg/script"
	"github.com/StoreStation/eeland/pkg/store"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/world"
)

// ProtocolVersion and ProtocolVersionMin bound the Hello handshake's
// effective-version negotiation, per spec.md §4.7.1.
const (
	ProtocolVersion    = 4
	ProtocolVersionMin = 1
)

// saveCooldownWindow is the /save command's per-world throttle.
const saveCooldownWindow = 10 * time.Second

// roomState bundles one live world with its bound script host and
// pending media request queues, the unit of state Join creates (or
// finds) and Leave never destroys (a room survives with zero players
// until an explicit /clear or process restart, matching the reference's
// reference-counted World that outlives a temporary empty room).
type roomState struct {
	world   *world.World
	script  *script.Host
	pending map[transport.PeerID]*media.PendingRequest
}

// pendingAuth is one peer's outstanding Auth challenge: the random bytes
// sent and the account name it was issued against.
type pendingAuth struct {
	challenge []byte
	name      string
}

// Dispatcher is the concrete Environment assembled from every other
// package: peer directory, block registry, world/auth persistence, the
// media index, rate limiters, and the transport peers are sent on. It
// implements transport.Processor. Grounded on spec.md §4.7's state
// machine and §5's lock-ordering contract (players_lock, i.e. env's
// internal lock, before any world's mutex — this type never holds both
// at once itself; it acquires env then calls into world/script, which
// take their own locks internally).
type Dispatcher struct {
	log *zap.Logger

	Env       *env.Environment
	Blocks    *blocks.Manager
	Worlds    *store.WorldStore
	Auth      *store.AuthStore
	Friends   *store.FriendStore
	Media     *media.Manager
	Limits    *ratelimit.Registry
	SaveGate  *ratelimit.Cooldown
	Transport *transport.Transport

	// Bans and Config are optional, set by the caller after New returns
	// (unlike the stores above, no handler requires them to be present):
	// a server run without a bans table simply never rejects a Hello on
	// ban grounds, and one without a config table never has a MOTD.
	Bans   *store.BanStore
	Config *store.ConfigStore

	mu          sync.Mutex
	rooms       map[string]*roomState
	peerPending map[transport.PeerID]*media.PendingRequest

	// challenges holds the per-peer outstanding Auth challenge until the
	// client's response arrives, cleared on use or disconnect.
	challenges   map[transport.PeerID]pendingAuth
	challengesMu sync.Mutex
}

// New assembles a Dispatcher. worldStore/authStore may be nil, in which
// case persistent worlds are served empty and Auth always reports
// Unregistered (matching the reference's behaviour when run without a
// database configured).
func New(blockMgr *blocks.Manager, worldStore *store.WorldStore, authStore *store.AuthStore, friendStore *store.FriendStore, mediaMgr *media.Manager, tp *transport.Transport, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		log:         log,
		Env:         env.New(),
		Blocks:      blockMgr,
		Worlds:      worldStore,
		Auth:        authStore,
		Friends:     friendStore,
		Media:       mediaMgr,
		Limits:      ratelimit.NewRegistry(),
		SaveGate:    ratelimit.NewCooldown(saveCooldownWindow),
		Transport:   tp,
		rooms:       make(map[string]*roomState),
		peerPending: make(map[transport.PeerID]*media.PendingRequest),
		challenges:  make(map[transport.PeerID]pendingAuth),
	}
}

// roomOf returns the live room for w, if w is non-nil and still tracked
// (a room is never removed once created, so this only fails for a nil
// world — a peer in StateIdle or StateWorldJoin that hasn't completed
// Join yet).
func (d *Dispatcher) roomOf(w *world.World) (*roomState, bool) {
	if w == nil {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, room := range d.rooms {
		if room.world == w {
			return room, true
		}
	}
	return nil, false
}

// OnPeerConnected allocates a Player record in StateIdle, ahead of
// Hello. Mirrors the reference's accept-time Player allocation; Hello
// itself only validates the nickname and stamps the negotiated version,
// since the peer ID (this server's substitute for the reference's
// connection-scoped peer slot) already exists at the transport layer by
// the time any packet can arrive.
func (d *Dispatcher) OnPeerConnected(peer transport.PeerID) {
	d.Env.AddPeer(peer)
}

// OnPeerDisconnected tears down a peer's room membership (if any) and
// forgets its rate-limit buckets and auth challenge before dropping its
// Player record.
func (d *Dispatcher) OnPeerDisconnected(peer transport.PeerID) {
	p, _, ok := d.Env.Get(peer)
	if ok && p.World != nil {
		d.leaveWorld(p, peer)
	}
	d.Limits.Forget(uint32(peer))
	d.challengesMu.Lock()
	delete(d.challenges, peer)
	d.challengesMu.Unlock()
	d.mu.Lock()
	delete(d.peerPending, peer)
	d.mu.Unlock()
	d.Env.RemovePeer(peer)
}

// ProcessPacket decodes the leading action code, checks it against the
// peer's current state, and dispatches. An unknown action, an action
// below its minimum state, or an unknown peer is a protocol error per
// spec.md §7: logged and dropped, connection kept alive.
func (d *Dispatcher) ProcessPacket(peer transport.PeerID, data []byte) error {
	if len(data) < 2 {
		d.log.Debug("short packet, dropping", zap.Uint32("peer", uint32(peer)))
		return nil
	}
	code := Action(uint16(data[0]) | uint16(data[1])<<8)
	spec, ok := dispatchTable[code]
	if !ok {
		d.log.Debug("unknown action, dropping", zap.Uint16("action", uint16(code)))
		return nil
	}

	p, state, ok := d.Env.Get(peer)
	if !ok {
		return nil // disconnected mid-flight; handlers observe a missing player
	}
	if !spec.satisfies(state) {
		d.log.Debug("action below minimum state, dropping",
			zap.String("action", spec.name), zap.Int("state", int(state)))
		return nil
	}
	return spec.handle(d, p, data[2:])
}
