// Package physics implements the deterministic player-movement
// integrator and its anti-cheat replay check. See SPEC_FULL.md
// [MODULE physics]. Grounded on spec.md §4.6 and
// original_source/src/core/blockmanager_reg.cpp's step_portal (teleporter
// physics) and step_arrow_*/step_boost_* callbacks, ported in the
// teacher's plain-struct-plus-mutex Player style (pkg/server/player.go).
package physics

import (
	"math"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/world"
)

// Vec2 is a 2-D float vector, used for position, velocity, and acceleration.
type Vec2 struct {
	X, Y float64
}

func (v Vec2) Add(o Vec2) Vec2    { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }
func (v Vec2) LenSq() float64     { return v.X*v.X + v.Y*v.Y }
func (v Vec2) Sub(o Vec2) Vec2    { return Vec2{v.X - o.X, v.Y - o.Y} }

func sgn(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

const (
	distanceStep  = 0.3
	viscousCoeffX = 0.05
	viscousCoeffY = 0.05
	stokesCoeff   = 0.1
	frictionAccel = 50
	controlAccel  = 10
)

// GravityAccel is the downward acceleration applied once per Step, and
// the magnitude pkg/script's built-in arrow/boost step callbacks use to
// cancel or reinforce it on the axis they claim (step_arrow_*/step_boost_*
// in original_source/src/core/blockmanager_reg.cpp).
const GravityAccel = 5

// Direction is a signed unit control input on one axis.
type Direction int8

const (
	DirNegative Direction = -1
	DirNone     Direction = 0
	DirPositive Direction = 1
)

// Controls is the latest client-reported input.
type Controls struct {
	Dir  Vec2 // horizontal/vertical movement direction, each component in {-1,0,1}
	Jump bool
}

// CollideVerdict is what a block's onCollide callback decides about a
// pending collision.
type CollideVerdict int

const (
	CollideNone CollideVerdict = iota
	CollideVelocity
	CollidePosition
)

// CollisionData is passed to a block's step/collide callback.
type CollisionData struct {
	Pos Vec2
	Dir Vec2
}

// StepCallback mutates acc/vel in place in response to the containing
// block (arrow acceleration, boost pads, freeze, portals, ...).
type StepCallback func(p *Player, data CollisionData)

// CollideCallback decides how to resolve a neighbourhood collision
// against a solid block.
type CollideCallback func(p *Player, pos world.Pos, isX bool) CollideVerdict

// Registry resolves a block ID to its physics callbacks, if any.
type Registry interface {
	StepCallback(id blocks.ID) StepCallback
	CollideCallback(id blocks.ID) CollideCallback
}

// Player is the kinematic and input state the physics step operates on.
type Player struct {
	Pos   Vec2
	Vel   Vec2
	Acc   Vec2
	Controls Controls

	Godmode bool

	// Coins mirrors env.Player.Coins, copied in by the caller before a
	// replay so coindoor/coingate built-in collide callbacks can read it.
	Coins int

	// LastPos mirrors env.Player.LastPos, copied in by the caller before a
	// replay so the teleporter built-in step callback can suppress a
	// re-teleport while still standing on the source teleporter.
	LastPos world.Pos

	// prn is the deterministic counter teleporters key their destination
	// pick off of, incremented once per call to NextPRN.
	prn uint32
}

// NextPRN returns the player's next deterministic pseudo-random draw,
// used to pick among multiple matching teleporter destinations.
func (p *Player) NextPRN() uint32 {
	p.prn = p.prn*1103515245 + 12345
	return p.prn
}

// Step integrates the player one dtime forward inside w, invoking block
// step/collide callbacks from reg. High-speed motion is resolved by
// recursive splitting, per spec.md §4.6 step 1.
func Step(p *Player, w *world.World, reg Registry, dtime float64) {
	if p.Godmode {
		p.Pos = p.Pos.Add(p.Vel.Scale(dtime))
		return
	}

	delta := p.Acc.Scale(0.5 * dtime).Add(p.Vel).Scale(dtime)
	if math.Sqrt(delta.LenSq()) > distanceStep && dtime > 1e-6 {
		half := dtime / 2
		Step(p, w, reg, half)
		Step(p, w, reg, dtime-half)
		return
	}

	p.Pos = p.Pos.Add(delta)
	p.Vel = p.Vel.Add(p.Acc.Scale(dtime))
	p.Acc = Vec2{}

	p.Acc.X += float64(dirSign(p.Controls.Dir.X)) * controlAccel
	p.Acc.Y += float64(dirSign(p.Controls.Dir.Y)) * controlAccel

	p.Acc.X -= viscousCoeffX * p.Vel.X * p.Vel.X * sgn(p.Vel.X)
	p.Acc.Y -= viscousCoeffY*p.Vel.Y*p.Vel.Y*sgn(p.Vel.Y) + stokesCoeff*p.Vel.Y*sgn(p.Vel.Y)
	p.Acc.X -= sgn(p.Vel.X) * dtime * frictionAccel
	p.Acc.Y -= sgn(p.Vel.Y) * dtime * frictionAccel

	width, height := w.Size()
	p.Pos.X, p.Vel.X = clipAxis(p.Pos.X, p.Vel.X, width)
	p.Pos.Y, p.Vel.Y = clipAxis(p.Pos.Y, p.Vel.Y, height)

	at := world.Pos{X: int(math.Floor(p.Pos.X)), Y: int(math.Floor(p.Pos.Y))}
	if cell, ok := w.GetBlock(at, world.LayerForeground); ok && reg != nil {
		if cb := reg.StepCallback(cell.ID); cb != nil {
			cb(p, CollisionData{Pos: p.Pos, Dir: p.Controls.Dir})
		}
	}

	resolveNeighbourhood(p, w, reg, at)

	p.Acc.Y += GravityAccel
}

func dirSign(d float64) int {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	default:
		return 0
	}
}

func clipAxis(pos, vel float64, size int) (float64, float64) {
	max := float64(size - 1)
	if pos < 0 {
		return 0, 0
	}
	if pos > max {
		return max, 0
	}
	return pos, vel
}

// resolveNeighbourhood scans the 3x3 block neighbourhood around at and
// resolves the first collision found on each axis, per spec.md §4.6
// step 7. A block whose effective draw type is solid collides by
// default (mirroring Player::step's "props->type != Solid => skip"
// scan in original_source/src/core/player.cpp); reg's CollideCallback,
// when registered for that block ID, overrides the default verdict
// instead of being required for a collision to happen at all (e.g. a
// coin-gate or one-way candy tile resolves collision only through its
// callback even though its base draw type is solid).
func resolveNeighbourhood(p *Player, w *world.World, reg Registry, at world.Pos) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			npos := world.Pos{X: at.X + dx, Y: at.Y + dy}
			cell, ok := w.GetBlock(npos, world.LayerForeground)
			if !ok {
				continue
			}
			isX := math.Abs(float64(dx)) >= math.Abs(float64(dy))

			var cb CollideCallback
			if reg != nil {
				cb = reg.CollideCallback(cell.ID)
			}

			var verdict CollideVerdict
			if cb != nil {
				verdict = cb(p, npos, isX)
			} else {
				props, ok := w.BlockProps(cell.ID)
				if !ok || props.EffectiveDraw(cell.Tile) != blocks.DrawSolid {
					continue
				}
				verdict = CollidePosition
			}

			switch verdict {
			case CollideVelocity:
				if isX {
					p.Vel.X = 0
				} else {
					p.Vel.Y = 0
				}
			case CollidePosition:
				if isX {
					p.Vel.X = 0
					p.Pos.X = math.Round(p.Pos.X)
				} else {
					p.Vel.Y = 0
					p.Pos.Y = math.Round(p.Pos.Y)
				}
			case CollideNone:
			}
		}
	}
}

// TeleporterDestination locates every position in w whose teleporter
// param's ID matches dstID, ordered for deterministic PRN indexing.
func TeleporterDestination(w *world.World, dstID uint8) []world.Pos {
	var out []world.Pos
	for _, pos := range w.GetBlocks(func(c world.Cell) bool { return c.ID == blocks.IDTeleporter }) {
		params, ok := w.GetParams(pos)
		if !ok || params.Type != world.ParamsTeleporter {
			continue
		}
		if params.Teleporter.ID == dstID {
			out = append(out, pos)
		}
	}
	return out
}

// Cell is a re-export convenience alias so callers of TeleporterDestination
// need not import pkg/world solely for the predicate signature.
type Cell = world.Cell

// Teleport moves p to one of the positions matching the source
// teleporter's dst_id, chosen via the player's PRN counter, and rotates
// the player's velocity by the destination-minus-source rotation delta.
// Mirrors step_portal: a player standing exactly on their last reported
// position is not re-teleported, avoiding infinite teleport loops.
func Teleport(p *Player, w *world.World, srcPos world.Pos, srcParams world.BlockParams, lastPos world.Pos) bool {
	if srcPos == lastPos {
		return false
	}
	positions := TeleporterDestination(w, srcParams.Teleporter.DstID)
	if len(positions) == 0 {
		return false
	}
	idx := int(p.NextPRN() % uint32(len(positions)))
	dst := positions[idx]
	dstParams, _ := w.GetParams(dst)

	p.Pos = Vec2{X: float64(dst.X), Y: float64(dst.Y)}

	rotation := (int(dstParams.Teleporter.Rotation) - int(srcParams.Teleporter.Rotation) + 4) % 4
	switch rotation {
	case 1: // 90 deg clockwise
		p.Vel = Vec2{X: -p.Vel.Y, Y: p.Vel.X}
	case 2: // 180 deg
		p.Vel = p.Vel.Scale(-1)
	case 3: // 90 deg counter-clockwise
		p.Vel = Vec2{X: p.Vel.Y, Y: -p.Vel.X}
	case 0:
		// unchanged
	}
	return true
}

// AntiCheatResult summarises a single Move-packet replay check.
type AntiCheatResult struct {
	Suspicion  float64
	BlockMismatch bool
}

// CheckMove replays 1e-4s from the client-reported snapshot and scores
// this single packet's penalty contribution per spec.md §4.6's anti-
// cheat rule: a differing containing block adds 10*dt; failing that, an
// acceleration delta whose squared length exceeds 1.21 adds 50*dt;
// failing that, a velocity delta whose squared length exceeds 1.21 adds
// 25*dt. dtime is capped at 2s for this scoring (the caller's own
// decay step, if any, should use the uncapped value). The three checks
// are mutually exclusive, matching RemotePlayer::runAnticheat's
// else-if chain: a block mismatch already explains the discrepancy, so
// the acc/vel comparisons (which assume the same containing block) go
// unchecked rather than piling on an unrelated penalty. The caller owns
// accumulating this into a persistent, decaying per-player score and
// comparing it against the 200/600 policy thresholds.
func CheckMove(reported Player, w *world.World, reg Registry, dtime float64) AntiCheatResult {
	if dtime > 2 {
		dtime = 2
	}

	before := world.Pos{X: int(math.Floor(reported.Pos.X)), Y: int(math.Floor(reported.Pos.Y))}
	replay := reported
	Step(&replay, w, reg, 1e-4)
	after := world.Pos{X: int(math.Floor(replay.Pos.X)), Y: int(math.Floor(replay.Pos.Y))}

	const toleranceSq = 1.1 * 1.1

	var suspicion float64
	var mismatch bool
	switch {
	case before != after:
		suspicion = 10 * dtime
		mismatch = true
	case replay.Acc.Sub(reported.Acc).LenSq() > toleranceSq:
		suspicion = 50 * dtime
	case replay.Vel.Sub(reported.Vel).LenSq() > toleranceSq:
		suspicion = 25 * dtime
	}
	return AntiCheatResult{Suspicion: suspicion, BlockMismatch: mismatch}
}
