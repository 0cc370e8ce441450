package physics

import (
	"math"
	"testing"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/world"
)

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	mgr := blocks.NewManager()
	if err := mgr.DoPackRegistration(); err != nil {
		t.Fatal(err)
	}
	mgr.DoPackPostprocess()
	w := world.NewWorld(mgr, world.NewMeta("Ttest", "alice"))
	if err := w.CreateEmpty(20, 20); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestStepAppliesGravity(t *testing.T) {
	w := newTestWorld(t)
	p := &Player{Pos: Vec2{X: 5, Y: 5}}
	Step(p, w, nil, 0.1)
	if p.Acc.Y != GravityAccel {
		t.Fatalf("expected gravity accel %v queued for next step, got %v", GravityAccel, p.Acc.Y)
	}
}

func TestStepClipsToWorldBounds(t *testing.T) {
	w := newTestWorld(t)
	p := &Player{Pos: Vec2{X: 0, Y: 0}, Vel: Vec2{X: -5, Y: -5}}
	Step(p, w, nil, 0.1)
	if p.Pos.X < 0 || p.Pos.Y < 0 {
		t.Fatalf("expected position clipped to >= 0, got %v", p.Pos)
	}
}

// TestClipAxisZeroesVelocityAtBoundary isolates the single-step clip rule
// (spec.md §4.6 step 5) without the recursive splitting TestStepClipsToWorldBounds
// exercises, where a later sub-step can reintroduce nonzero velocity.
func TestClipAxisZeroesVelocityAtBoundary(t *testing.T) {
	pos, vel := clipAxis(-0.5, -3, 20)
	if pos != 0 || vel != 0 {
		t.Fatalf("expected (0,0) at lower boundary, got (%v,%v)", pos, vel)
	}
	pos, vel = clipAxis(25, 3, 20)
	if pos != 19 || vel != 0 {
		t.Fatalf("expected (19,0) at upper boundary, got (%v,%v)", pos, vel)
	}
}

func TestStepRecursesAtHighSpeed(t *testing.T) {
	w := newTestWorld(t)
	p := &Player{Pos: Vec2{X: 10, Y: 10}, Vel: Vec2{X: 50, Y: 0}}
	before := p.Pos
	Step(p, w, nil, 0.1)
	// With recursion, the final position must still respect the world's
	// upper clip even though a single unsplit step would overshoot it.
	width, _ := w.Size()
	if p.Pos.X > float64(width-1) {
		t.Fatalf("expected clipped position, got %v (was %v)", p.Pos, before)
	}
}

func TestGodmodeSkipsPhysics(t *testing.T) {
	w := newTestWorld(t)
	p := &Player{Pos: Vec2{X: 5, Y: 5}, Vel: Vec2{X: 1, Y: 0}, Godmode: true}
	Step(p, w, nil, 1.0)
	if p.Pos.X != 6 || p.Pos.Y != 5 {
		t.Fatalf("expected pure translation under godmode, got %v", p.Pos)
	}
	if p.Acc != (Vec2{}) {
		t.Fatalf("expected no accel accumulation under godmode, got %v", p.Acc)
	}
}

func TestTeleportRotatesVelocity(t *testing.T) {
	w := newTestWorld(t)
	src := world.Pos{X: 2, Y: 2}
	dst := world.Pos{X: 10, Y: 10}

	mustUpdate := func(pos world.Pos, rot, id, dstID uint8) {
		if _, err := w.UpdateBlock(world.BlockUpdate{
			Pos: pos, Layer: world.LayerForeground,
			Cell:   world.Cell{ID: blocks.IDTeleporter},
			Params: world.BlockParams{Type: world.ParamsTeleporter, Teleporter: world.TeleporterParams{Rotation: rot, ID: id, DstID: dstID}},
		}); err != nil {
			t.Fatal(err)
		}
	}
	mustUpdate(src, 0, 1, 2)
	mustUpdate(dst, 1, 2, 1) // rotation delta (1-0+4)%4 = 1 -> 90 deg CW

	srcParams, _ := w.GetParams(src)
	p := &Player{Pos: Vec2{X: float64(src.X), Y: float64(src.Y)}, Vel: Vec2{X: 3, Y: 0}}
	if !Teleport(p, w, src, srcParams, world.Pos{X: -1, Y: -1}) {
		t.Fatal("expected teleport to succeed")
	}
	if p.Pos.X != float64(dst.X) || p.Pos.Y != float64(dst.Y) {
		t.Fatalf("expected player moved to destination, got %v", p.Pos)
	}
	// 90 deg CW: (x,y) -> (-y,x); vel was (3,0) -> (0,3)
	if math.Abs(p.Vel.X) > 1e-9 || math.Abs(p.Vel.Y-3) > 1e-9 {
		t.Fatalf("expected velocity rotated 90deg CW to (0,3), got %v", p.Vel)
	}
}

func TestTeleportRefusesLoopOnSamePosition(t *testing.T) {
	w := newTestWorld(t)
	src := world.Pos{X: 2, Y: 2}
	p := &Player{Pos: Vec2{X: 2, Y: 2}}
	ok := Teleport(p, w, src, world.BlockParams{Type: world.ParamsTeleporter}, src)
	if ok {
		t.Fatal("expected teleport to refuse when standing on last reported position")
	}
}

func TestCheckMoveFlagsBlockMismatch(t *testing.T) {
	w := newTestWorld(t)
	reported := Player{Pos: Vec2{X: 5, Y: 0}, Vel: Vec2{X: 1000, Y: 0}}
	result := CheckMove(reported, w, nil, 0.05)
	if result.Suspicion <= 0 {
		t.Fatal("expected nonzero suspicion for an implausible jump")
	}
}

func TestCheckMoveCapsDtimeAtTwoSeconds(t *testing.T) {
	w := newTestWorld(t)
	// A player at rest already carries the queued gravity acceleration
	// from their prior step; a report matching that is physically
	// consistent and should accrue no suspicion regardless of the
	// (capped) elapsed time claimed.
	reported := Player{Pos: Vec2{X: 5, Y: 5}, Acc: Vec2{Y: GravityAccel}}
	result := CheckMove(reported, w, nil, 1000)
	if result.Suspicion != 0 {
		t.Fatalf("expected zero suspicion for a consistent stationary snapshot, got %v", result.Suspicion)
	}
}
