package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/physics"
	"github.com/StoreStation/eeland/pkg/world"
)

// Host implements physics.Registry: the step loop consults it once per
// occupied block to run that block's on_intersect/on_collide hooks.
var _ physics.Registry = (*Host)(nil)

// StepCallback returns the block's step hook (run every physics step a
// player occupies the block), consulting the hard-coded default-pack
// builtins (pkg/script/builtin.go) before a world script's on_intersect
// ref, since the default packs never populate Callbacks.OnIntersect for
// the IDs the builtins claim. Returns nil if neither resolves.
func (h *Host) StepCallback(id blocks.ID) physics.StepCallback {
	if cb := h.builtinStep(id); cb != nil {
		return cb
	}
	props, ok := h.BlockMgr.GetProps(id)
	if !ok || props.Callbacks.OnIntersect == 0 {
		return nil
	}
	return func(p *physics.Player, data physics.CollisionData) {
		h.callRef(props.Callbacks.OnIntersect,
			lua.LNumber(data.Pos.X), lua.LNumber(data.Pos.Y),
			lua.LNumber(data.Dir.X), lua.LNumber(data.Dir.Y))
	}
}

// CollideCallback returns the block's collide hook, consulting the
// hard-coded default-pack builtins before a world script's on_collide
// ref for the same reason StepCallback does. A Lua callback's first
// return value (a number matching physics.CollideVerdict) is translated
// into the caller's resolution; an unregistered or misbehaving callback
// resolves as CollideNone (stop at the boundary, the physically safe
// default).
func (h *Host) CollideCallback(id blocks.ID) physics.CollideCallback {
	if cb := h.builtinCollide(id); cb != nil {
		return cb
	}
	props, ok := h.BlockMgr.GetProps(id)
	if !ok || props.Callbacks.OnCollide == 0 {
		return nil
	}
	return func(p *physics.Player, pos world.Pos, isX bool) physics.CollideVerdict {
		ret := h.callRef(props.Callbacks.OnCollide, lua.LNumber(pos.X), lua.LNumber(pos.Y), lua.LBool(isX))
		if len(ret) == 0 {
			return physics.CollideNone
		}
		n, ok := ret[0].(lua.LNumber)
		if !ok {
			return physics.CollideNone
		}
		return physics.CollideVerdict(int(n))
	}
}

// OnBlockPlaced runs the block's on_placed hook after a player places it.
func (h *Host) OnBlockPlaced(id blocks.ID) {
	props, ok := h.BlockMgr.GetProps(id)
	if !ok {
		return
	}
	h.callRef(props.Callbacks.OnPlaced, lua.LNumber(id))
}

// OnIntersectOnce runs the block's on_intersect_once hook, fired the
// first time a player enters the block (not every step while standing
// on it, unlike StepCallback's on_intersect).
func (h *Host) OnIntersectOnce(id blocks.ID) {
	props, ok := h.BlockMgr.GetProps(id)
	if !ok {
		return
	}
	h.callRef(props.Callbacks.OnIntersectOnce, lua.LNumber(id))
}

// OnStep runs the world-level env.on_step(abstime) hook, if registered
// via env.on_step = function(...) ... end at script-load time.
func (h *Host) OnStep(abstime float64) {
	envTbl, ok := h.L.GetGlobal("env").(*lua.LTable)
	if !ok {
		return
	}
	fn, ok := envTbl.RawGetString("on_step").(*lua.LFunction)
	if !ok {
		return
	}
	h.L.Push(fn)
	h.L.Push(lua.LNumber(abstime))
	if err := h.L.PCall(1, 0, nil); err != nil {
		h.ErrorCount++
	}
}

// OnBlockPlace validates a pending placement before it is committed,
// running the same on_placed hook in a dry-run capacity is out of scope
// here (the original only fires on_placed post-commit); kept as a thin
// alias so server.go's dispatch table has one name per §4.8 hook list.
func (h *Host) OnBlockPlace(id blocks.ID) {
	h.OnBlockPlaced(id)
}
