package script

import (
	"math"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/physics"
	"github.com/StoreStation/eeland/pkg/world"
)

// boostSpeed mirrors blockmanager_reg.cpp's BOOST_SPEED.
const boostSpeed = 70.0

// builtinSteps are the engine's hard-coded (non-Lua) step callbacks for
// the default packs' action/boost/spike blocks, grounded on
// original_source/src/core/blockmanager_reg.cpp's step_arrow_*/step_boost_*/
// step_freeze. These IDs are never assigned a Callbacks.OnIntersect ref
// by pkg/blocks' default packs, so they are consulted ahead of the Lua
// lookup in Host.StepCallback rather than through it. Arrow id 4
// (step_arrow_none) is the original's explicit no-op and is left
// unregistered here rather than added as a do-nothing entry.
var builtinSteps = map[blocks.ID]physics.StepCallback{
	1: stepArrowLeft,
	2: stepArrowUp,
	3: stepArrowRight,

	114: stepBoostLeft,
	115: stepBoostRight,
	116: stepBoostUp,
	117: stepBoostDown,

	blocks.IDSpikes: stepFreeze,
}

func stepArrowLeft(p *physics.Player, _ physics.CollisionData)  { p.Acc.X = -physics.GravityAccel }
func stepArrowUp(p *physics.Player, _ physics.CollisionData)    { p.Acc.Y = -physics.GravityAccel }
func stepArrowRight(p *physics.Player, _ physics.CollisionData) { p.Acc.X = physics.GravityAccel }

func stepBoostLeft(p *physics.Player, _ physics.CollisionData) {
	p.Acc.X = -physics.GravityAccel
	p.Vel.X = -boostSpeed
}

func stepBoostRight(p *physics.Player, _ physics.CollisionData) {
	p.Acc.X = physics.GravityAccel
	p.Vel.X = boostSpeed
}

func stepBoostUp(p *physics.Player, _ physics.CollisionData) {
	p.Acc.Y = -physics.GravityAccel
	p.Vel.Y = -boostSpeed
}

func stepBoostDown(p *physics.Player, _ physics.CollisionData) {
	p.Acc.Y = physics.GravityAccel
	p.Vel.Y = boostSpeed
}

// stepFreeze mirrors step_freeze, used by the spikes block. The
// original also disables controls_enabled; this port's Controls are
// overwritten wholesale by the next client Move packet regardless, so
// zeroing them here only affects the in-flight replay step.
func stepFreeze(p *physics.Player, _ physics.CollisionData) {
	p.Controls = physics.Controls{}
	p.Vel = p.Vel.Scale(0.2)
}

// builtinCollides are the engine's hard-coded (non-Lua) collide
// callbacks that don't need a *world.World closure, grounded on
// blockmanager_reg.cpp's onCollide_nop/onCollide_oneway.
var builtinCollides = map[blocks.ID]physics.CollideCallback{
	blocks.IDBlackFake: collideNop,
	blocks.IDBlackReal: collideSolid,
}

func init() {
	for id := blocks.ID(61); id <= 64; id++ {
		builtinCollides[id] = collideOneway
	}
}

func collideNop(*physics.Player, world.Pos, bool) physics.CollideVerdict {
	return physics.CollideNone
}

// collideSolid mirrors onCollide_solid, used by the "hidden" pack's real
// block (whose pack default draw type is Action, not Solid, since it
// renders like a decoration until touched) to force solid collision.
func collideSolid(*physics.Player, world.Pos, bool) physics.CollideVerdict {
	return physics.CollidePosition
}

// collideOneway mirrors onCollide_oneway: a candy gate blocks sideways
// passage unless the player is jumping, and always allows stepping up
// onto it from below.
func collideOneway(p *physics.Player, pos world.Pos, isX bool) physics.CollideVerdict {
	if !isX && p.Vel.Y >= 0 && p.Pos.Y+0.55 < float64(pos.Y) {
		return physics.CollidePosition
	}
	if isX && p.Pos.Y == float64(pos.Y) && !p.Controls.Jump {
		return physics.CollidePosition
	}
	return physics.CollideNone
}

// builtinStep resolves id's hard-coded step callback, if any. Unlike
// builtinSteps' entries, the teleporter and black-real IDs need a
// *world.World closure (teleporter destination lookup, respectively a
// forced-solid override), so they are constructed here rather than
// stored in the static map.
func (h *Host) builtinStep(id blocks.ID) physics.StepCallback {
	if cb, ok := builtinSteps[id]; ok {
		return cb
	}
	if id == blocks.IDTeleporter {
		return h.stepPortal
	}
	return nil
}

// stepPortal mirrors step_portal: a player standing on a teleporter
// whose block position differs from their last reported position is
// relocated to one of the matching destinations, chosen via the
// player's PRN counter.
func (h *Host) stepPortal(p *physics.Player, data physics.CollisionData) {
	srcPos := world.Pos{X: int(math.Floor(data.Pos.X)), Y: int(math.Floor(data.Pos.Y))}
	srcParams, ok := h.World.GetParams(srcPos)
	if !ok || srcParams.Type != world.ParamsTeleporter {
		return
	}
	physics.Teleport(p, h.World, srcPos, srcParams, p.LastPos)
}

// builtinCollide resolves id's hard-coded collide callback, if any.
// Coindoor/coingate need a *world.World closure to read the gate's
// param_u8 threshold, mirroring onCollide_coindoor/onCollide_coingate.
func (h *Host) builtinCollide(id blocks.ID) physics.CollideCallback {
	if cb, ok := builtinCollides[id]; ok {
		return cb
	}
	switch id {
	case blocks.IDCoindoor:
		return func(p *physics.Player, pos world.Pos, _ bool) physics.CollideVerdict {
			return collideCoindoor(h.World, p, pos)
		}
	case blocks.IDCoingate:
		return func(p *physics.Player, pos world.Pos, _ bool) physics.CollideVerdict {
			return collideCoingate(h.World, p, pos)
		}
	}
	return nil
}

func collideCoindoor(w *world.World, p *physics.Player, pos world.Pos) physics.CollideVerdict {
	need := coinThreshold(w, pos)
	if p.Coins >= need {
		return physics.CollideNone
	}
	return physics.CollidePosition
}

func collideCoingate(w *world.World, p *physics.Player, pos world.Pos) physics.CollideVerdict {
	need := coinThreshold(w, pos)
	if p.Coins < need {
		return physics.CollideNone
	}
	return physics.CollidePosition
}

func coinThreshold(w *world.World, pos world.Pos) int {
	params, ok := w.GetParams(pos)
	if !ok || params.Type != world.ParamsU8 {
		return 0
	}
	return int(params.U8)
}
