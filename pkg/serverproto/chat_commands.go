package serverproto

import (
	"strconv"
	"strings"
	"time"

	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/physics"
	"github.com/StoreStation/eeland/pkg/script"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/world"
)

// commandPrefix is the server-side chat command marker, per spec.md
// §4.12 ('.' is the client-side equivalent, irrelevant here).
const commandPrefix = '/'

// systemMsg sends text back to peer alone as a Chat line from peer ID 0,
// the reserved "server" sender a client renders distinctly. Denied or
// malformed commands always reply this way, never a disconnect, per
// spec.md §4.12.
func (d *Dispatcher) systemMsg(peer transport.PeerID, text string) {
	d.send(peer, transport.ChannelEvents, encodeChat(0, text))
}

// runCommand tokenises a /-prefixed chat line and dispatches it, mirroring
// the teacher's handleCommand switch generalized to spec.md §4.12's
// command set. Every command requires an active room; commands beyond
// /help also require a rank the role ladder in pkg/world/flags.go grants.
func (d *Dispatcher) runCommand(p *env.Player, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	if cmd == "/help" {
		d.systemMsg(p.Peer, "commands: /help /respawn /setpass /setcode /code /flags /ffilter /fset /fdel /clear /import /load /save /title")
		return
	}

	room, ok := d.roomOf(p.World)
	if !ok {
		d.systemMsg(p.Peer, "you must be in a world to use this command")
		return
	}

	switch cmd {
	case "/respawn":
		p.Physics.Pos = physics.Vec2{}
		p.Physics.Vel = physics.Vec2{}
	case "/title":
		d.cmdTitle(p, room, args)
	case "/code":
		d.cmdCode(p, room, args)
	case "/setcode":
		d.cmdSetCode(p, room, args)
	case "/setpass":
		d.cmdSetPass(p, room, args)
	case "/flags":
		d.cmdFlags(p, room, args)
	case "/ffilter":
		d.cmdFFilter(p, room, args)
	case "/fset":
		d.cmdFChange(p, room, args, true)
	case "/fdel":
		d.cmdFChange(p, room, args, false)
	case "/clear":
		d.cmdClear(p, room, args)
	case "/import":
		d.systemMsg(p.Peer, "/import is not available on this server")
	case "/load":
		d.cmdLoad(p, room)
	case "/save":
		d.cmdSave(p, room)
	default:
		d.systemMsg(p.Peer, "unknown command: "+cmd)
	}
}

// requireCoowner reports whether p holds at least co-owner rank in room,
// replying with a system message and returning false otherwise. Mirrors
// spec.md §4.12's "permissions derive from the role ladder" contract for
// world-administration commands.
func (d *Dispatcher) requireCoowner(p *env.Player, room *roomState) bool {
	if room.world.Meta.GetPlayerFlags(p.Name).Check(world.PFCoowner) {
		return true
	}
	d.systemMsg(p.Peer, "you do not have permission to do that")
	return false
}

func (d *Dispatcher) cmdTitle(p *env.Player, room *roomState, args []string) {
	if !d.requireCoowner(p, room) {
		return
	}
	room.world.Meta.Title = strings.Join(args, " ")
	d.systemMsg(p.Peer, "title updated")
}

func (d *Dispatcher) cmdCode(p *env.Player, room *roomState, args []string) {
	if len(args) != 1 || args[0] != room.world.Meta.EditCode || room.world.Meta.EditCode == "" {
		d.systemMsg(p.Peer, "invalid code")
		return
	}
	room.world.Meta.ChangePlayerFlags(p.Name, world.PFTmpEdit, world.PFMaskTmp)
	d.systemMsg(p.Peer, "edit code accepted")
}

func (d *Dispatcher) cmdSetCode(p *env.Player, room *roomState, args []string) {
	if !d.requireCoowner(p, room) {
		return
	}
	revoke := false
	if len(args) > 0 && args[0] == "-f" {
		revoke = true
		args = args[1:]
	}
	code := ""
	if len(args) > 0 {
		code = args[0]
	}
	room.world.Meta.EditCode = code
	if revoke {
		for name := range room.world.Meta.AllPlayerFlags() {
			room.world.Meta.ChangePlayerFlags(name, 0, world.PFMaskTmp)
		}
	}
	d.systemMsg(p.Peer, "edit code updated")
}

func (d *Dispatcher) cmdSetPass(p *env.Player, room *roomState, args []string) {
	if !d.requireCoowner(p, room) {
		return
	}
	if len(args) < 2 || args[0] != args[1] {
		d.systemMsg(p.Peer, "usage: /setpass new new")
		return
	}
	d.systemMsg(p.Peer, "password change requires the account service; not available on this server")
}

func (d *Dispatcher) cmdFlags(p *env.Player, room *roomState, args []string) {
	target := p.Name
	if len(args) > 0 {
		target = args[0]
	}
	d.systemMsg(p.Peer, target+": "+room.world.Meta.GetPlayerFlags(target).ToHumanReadable())
}

func (d *Dispatcher) cmdFFilter(p *env.Player, room *roomState, args []string) {
	if len(args) == 0 {
		d.systemMsg(p.Peer, "available flags: "+world.FlagList())
		return
	}
	mask := world.PFNone
	for _, a := range args {
		flag, ok := world.ParseFlagName(a)
		if !ok {
			d.systemMsg(p.Peer, "unknown flag: "+a)
			return
		}
		mask |= flag
	}
	var names []string
	for name, flags := range room.world.Meta.AllPlayerFlags() {
		if flags.Check(mask) {
			names = append(names, name)
		}
	}
	d.systemMsg(p.Peer, strings.Join(names, ", "))
}

func (d *Dispatcher) cmdFChange(p *env.Player, room *roomState, args []string, grant bool) {
	if len(args) < 2 {
		d.systemMsg(p.Peer, "usage: /fset|/fdel <target> <flag>...")
		return
	}
	target := args[0]
	var mask world.PlayerFlags
	for _, name := range args[1:] {
		flag, ok := world.ParseFlagName(name)
		if !ok {
			d.systemMsg(p.Peer, "unknown flag: "+name)
			return
		}
		mask |= flag
	}

	actorFlags := room.world.Meta.GetPlayerFlags(p.Name)
	targetFlags := room.world.Meta.GetPlayerFlags(target)
	allowed := actorFlags.MayManipulate(targetFlags, mask)
	if allowed == 0 {
		d.systemMsg(p.Peer, "you do not have permission to change those flags")
		return
	}
	var newValue world.PlayerFlags
	if grant {
		newValue = allowed
	}
	room.world.Meta.ChangePlayerFlags(target, newValue, allowed)
	d.systemMsg(p.Peer, "flags updated for "+target)
}

func (d *Dispatcher) cmdClear(p *env.Player, room *roomState, args []string) {
	if !d.requireCoowner(p, room) {
		return
	}
	width, height := room.world.Size()
	if len(args) >= 1 {
		if w, err := strconv.Atoi(args[0]); err == nil {
			width = w
		}
	}
	if len(args) >= 2 {
		if h, err := strconv.Atoi(args[1]); err == nil {
			height = h
		}
	}
	fresh := world.NewWorld(d.Blocks, room.world.Meta)
	if err := fresh.CreateEmpty(width, height); err != nil {
		d.systemMsg(p.Peer, "invalid size")
		return
	}
	freshHost := script.New(d.Blocks, fresh, d.Media, d.log)
	d.mu.Lock()
	for id, r := range d.rooms {
		if r == room {
			d.rooms[id] = &roomState{world: fresh, script: freshHost, pending: room.pending}
			break
		}
	}
	d.mu.Unlock()
	room.script.Close()
	d.Env.ForEachInWorld(room.world, func(other *env.Player) {
		other.World = fresh
	})
	d.systemMsg(p.Peer, "world cleared")
}

// cmdLoad rebuilds the room around a freshly allocated World the same way
// cmdClear does, rather than reusing room.world: World.CreateEmpty (which
// WorldStore.Load calls internally) refuses to reinitialize an
// already-allocated grid, so reloading in place would always fail against
// a room that has ever been played in.
func (d *Dispatcher) cmdLoad(p *env.Player, room *roomState) {
	if !d.requireCoowner(p, room) {
		return
	}
	if d.Worlds == nil {
		d.systemMsg(p.Peer, "no world storage configured")
		return
	}
	fresh := world.NewWorld(d.Blocks, room.world.Meta)
	if err := d.Worlds.Load(fresh); err != nil {
		d.systemMsg(p.Peer, "load failed: "+err.Error())
		return
	}
	freshHost := script.New(d.Blocks, fresh, d.Media, d.log)
	d.mu.Lock()
	for id, r := range d.rooms {
		if r == room {
			d.rooms[id] = &roomState{world: fresh, script: freshHost, pending: room.pending}
			break
		}
	}
	d.mu.Unlock()
	room.script.Close()
	d.Env.ForEachInWorld(room.world, func(other *env.Player) {
		other.World = fresh
	})
	d.systemMsg(p.Peer, "world reloaded")
}

func (d *Dispatcher) cmdSave(p *env.Player, room *roomState) {
	if !d.requireCoowner(p, room) {
		return
	}
	if d.Worlds == nil {
		d.systemMsg(p.Peer, "no world storage configured")
		return
	}
	if !d.SaveGate.Allow(room.world.Meta.ID, time.Now()) {
		d.systemMsg(p.Peer, "this world was saved too recently, try again shortly")
		return
	}
	if err := d.Worlds.Save(room.world); err != nil {
		d.systemMsg(p.Peer, "save failed: "+err.Error())
		return
	}
	d.systemMsg(p.Peer, "world saved")
}
