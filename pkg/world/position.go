package world

// RangeKind discriminates the PositionRange sum type.
type RangeKind int

const (
	RangeOneBlock RangeKind = iota
	RangeArea
	RangeCircle
	RangeEntireWorld
)

// PositionRange is a tagged union describing a region of the grid: a
// single cell, an axis-aligned rectangle, a circle, or the whole world.
// Grounded on spec.md §4.5's PositionRange types and the reference's
// range-based block-tool commands (set_tile, get_blocks_in_range).
type PositionRange struct {
	Kind RangeKind

	One Pos // RangeOneBlock

	MinP, MaxP Pos // RangeArea

	Center Pos // RangeCircle
	Radius int // RangeCircle
}

func OneBlock(pos Pos) PositionRange { return PositionRange{Kind: RangeOneBlock, One: pos} }

func Area(minp, maxp Pos) PositionRange {
	if minp.X > maxp.X {
		minp.X, maxp.X = maxp.X, minp.X
	}
	if minp.Y > maxp.Y {
		minp.Y, maxp.Y = maxp.Y, minp.Y
	}
	return PositionRange{Kind: RangeArea, MinP: minp, MaxP: maxp}
}

func Circle(center Pos, radius int) PositionRange {
	return PositionRange{Kind: RangeCircle, Center: center, Radius: radius}
}

func EntireWorld() PositionRange { return PositionRange{Kind: RangeEntireWorld} }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// bbox returns the rectangle to scan for rng, clipped to [0,width)x[0,height).
func (rng PositionRange) bbox(width, height int) (minp, maxp Pos, ok bool) {
	switch rng.Kind {
	case RangeOneBlock:
		return rng.One, rng.One, true
	case RangeEntireWorld:
		return Pos{0, 0}, Pos{width - 1, height - 1}, width > 0 && height > 0
	case RangeArea:
		minp = Pos{clampInt(rng.MinP.X, 0, width-1), clampInt(rng.MinP.Y, 0, height-1)}
		maxp = Pos{clampInt(rng.MaxP.X, 0, width-1), clampInt(rng.MaxP.Y, 0, height-1)}
		return minp, maxp, minp.X <= maxp.X && minp.Y <= maxp.Y
	case RangeCircle:
		minp = Pos{clampInt(rng.Center.X-rng.Radius, 0, width-1), clampInt(rng.Center.Y-rng.Radius, 0, height-1)}
		maxp = Pos{clampInt(rng.Center.X+rng.Radius, 0, width-1), clampInt(rng.Center.Y+rng.Radius, 0, height-1)}
		return minp, maxp, minp.X <= maxp.X && minp.Y <= maxp.Y
	default:
		return Pos{}, Pos{}, false
	}
}

func (rng PositionRange) matches(pos Pos) bool {
	if rng.Kind != RangeCircle {
		return true
	}
	dx := rng.Center.X - pos.X
	dy := rng.Center.Y - pos.Y
	return dx*dx+dy*dy <= rng.Radius*rng.Radius
}

// iteratorStartLocked initialises *pos to the first position within rng
// (clipped to the world's bounds), returning false if nothing is in range.
func (w *World) iteratorStartLocked(rng PositionRange, pos *Pos) bool {
	minp, maxp, ok := rng.bbox(w.width, w.height)
	if !ok {
		return false
	}
	*pos = minp
	if rng.matches(*pos) {
		return true
	}
	return w.advance(rng, minp, maxp, pos)
}

// iteratorNextLocked advances *pos to the next matching position, or
// returns false once the range is exhausted.
func (w *World) iteratorNextLocked(rng PositionRange, pos *Pos) bool {
	if rng.Kind == RangeOneBlock {
		return false
	}
	_, maxp, ok := rng.bbox(w.width, w.height)
	if !ok {
		return false
	}
	minp, _, _ := rng.bbox(w.width, w.height)
	return w.advance(rng, minp, maxp, pos)
}

func (w *World) advance(rng PositionRange, minp, maxp Pos, pos *Pos) bool {
	for {
		pos.X++
		if pos.X > maxp.X {
			pos.X = minp.X
			pos.Y++
		}
		if pos.Y > maxp.Y {
			return false
		}
		if rng.matches(*pos) {
			return true
		}
	}
}

// IteratorStart is the public, lock-acquiring form of iteratorStartLocked.
func (w *World) IteratorStart(rng PositionRange, pos *Pos) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.iteratorStartLocked(rng, pos)
}

// IteratorNext is the public, lock-acquiring form of iteratorNextLocked.
func (w *World) IteratorNext(rng PositionRange, pos *Pos) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.iteratorNextLocked(rng, pos)
}
