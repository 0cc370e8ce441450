// Package world implements the fixed-size two-layer block grid, its
// PlayerFlags permission model, and the per-world metadata the rest of
// the server hangs state off of. See SPEC_FULL.md [MODULE world].
// Grounded on original_source/src/core/world.h/world.cpp (bounds and
// layer-validation semantics, createEmpty/createDummy contract) and the
// teacher's sync.RWMutex-guarded-map idiom in the stock pkg/world/world.go
// this package replaces.
package world

import (
	"errors"
	"sync"

	"github.com/StoreStation/eeland/pkg/blocks"
)

// Layer selects which of the two block planes an operation addresses.
type Layer uint8

const (
	LayerForeground Layer = 0
	LayerBackground Layer = 1
	numLayers             = 2
)

const (
	MinSize = 3
	MaxSize = 300
)

var (
	ErrOutOfBounds  = errors.New("world: position out of bounds")
	ErrBadSize      = errors.New("world: size out of range")
	ErrAlreadyInit  = errors.New("world: already created")
	ErrUnknownBlock = errors.New("world: unknown block id")
	ErrWrongLayer   = errors.New("world: block does not belong on this layer")
)

// Pos is an in-world block coordinate.
type Pos struct {
	X, Y int
}

// Cell is one block slot: an ID plus its 3-bit tile discriminator (door
// open/closed frame, gate countdown frame, spring direction, and so on).
type Cell struct {
	ID   blocks.ID
	Tile uint8
}

// BlockUpdate is a single positioned write, as queued for broadcast.
type BlockUpdate struct {
	Pos    Pos
	Layer  Layer
	Cell   Cell
	Params BlockParams
}

// World is a fixed-size two-layer block grid plus everything a running
// room needs: block parameters, queued updates pending broadcast, and
// shared metadata. One mutex guards all of it, matching the reference's
// single coarse per-world lock.
type World struct {
	mu sync.Mutex

	width, height int
	cells         []Cell // len == width*height*numLayers, index via cellIndex
	params        map[Pos]BlockParams

	// ProcQueue collapses same-tick writes to the same position to their
	// last value; drained once per server step into broadcast packets.
	ProcQueue map[Pos]BlockUpdate

	Meta *Meta

	blockMgr *blocks.Manager
}

// NewWorld allocates an uninitialized World bound to the given block registry.
func NewWorld(mgr *blocks.Manager, meta *Meta) *World {
	return &World{
		params:    make(map[Pos]BlockParams),
		ProcQueue: make(map[Pos]BlockUpdate),
		blockMgr:  mgr,
		Meta:      meta,
	}
}

// CreateEmpty allocates the backing grid at the given size, zero-filled
// (every cell is air on both layers). Mirrors World::createEmpty.
func (w *World) CreateEmpty(width, height int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if width < MinSize || width > MaxSize || height < MinSize || height > MaxSize {
		return ErrBadSize
	}
	if w.cells != nil {
		return ErrAlreadyInit
	}
	w.width, w.height = width, height
	w.cells = make([]Cell, width*height*numLayers)
	return nil
}

// CreateDummy is CreateEmpty plus a floor: the bottom half of the
// foreground layer is filled with solid block ID 9, for tests. Mirrors
// World::createDummy.
func (w *World) CreateDummy(width, height int) error {
	if err := w.CreateEmpty(width, height); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for y := height / 2; y < height; y++ {
		for x := 0; x < width; x++ {
			w.cells[w.index(Pos{x, y}, LayerForeground)] = Cell{ID: 9}
		}
	}
	return nil
}

func (w *World) index(pos Pos, layer Layer) int {
	return int(layer)*w.width*w.height + pos.Y*w.width + pos.X
}

func (w *World) inBounds(pos Pos) bool {
	return pos.X >= 0 && pos.Y >= 0 && pos.X < w.width && pos.Y < w.height
}

// Size returns the world's fixed dimensions.
func (w *World) Size() (width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// GetBlock reads the cell at pos on layer. Returns false if pos is out
// of bounds or layer is invalid.
func (w *World) GetBlock(pos Pos, layer Layer) (Cell, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.getBlockLocked(pos, layer)
}

func (w *World) getBlockLocked(pos Pos, layer Layer) (Cell, bool) {
	if !w.inBounds(pos) || layer > LayerBackground {
		return Cell{}, false
	}
	return w.cells[w.index(pos, layer)], true
}

// SetBlock writes cell at pos on layer, after verifying pos is in
// bounds, the block ID is registered, and the block's registered draw
// type matches the layer (background blocks only on LayerBackground,
// everything else only on LayerForeground). Mirrors World::setBlock.
func (w *World) SetBlock(pos Pos, layer Layer, cell Cell) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setBlockLocked(pos, layer, cell)
}

func (w *World) setBlockLocked(pos Pos, layer Layer, cell Cell) error {
	if !w.inBounds(pos) || layer > LayerBackground {
		return ErrOutOfBounds
	}
	props, ok := w.blockMgr.GetProps(cell.ID)
	if !ok {
		return ErrUnknownBlock
	}
	isBackground := props.Draw == blocks.DrawBackground
	if isBackground != (layer == LayerBackground) {
		return ErrWrongLayer
	}
	w.cells[w.index(pos, layer)] = cell
	return nil
}

// BlockProps looks up id's registered properties via the world's block
// manager, letting callers outside pkg/blocks (e.g. pkg/physics, which
// only ever holds a *World) resolve a cell's effective draw type.
func (w *World) BlockProps(id blocks.ID) (blocks.Properties, bool) {
	return w.blockMgr.GetProps(id)
}

// GetParams returns a copy of the parameter payload stored at pos, if any.
func (w *World) GetParams(pos Pos) (BlockParams, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.params[pos]
	return p, ok
}

// SetBlockTiles writes tile to every position block_id occupies within
// rng, leaving the block ID and parameters untouched.
func (w *World) SetBlockTiles(rng PositionRange, blockID blocks.ID, tile uint8) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var pos Pos
	for ok := w.iteratorStartLocked(rng, &pos); ok; ok = w.iteratorNextLocked(rng, &pos) {
		for _, layer := range [2]Layer{LayerForeground, LayerBackground} {
			idx := w.index(pos, layer)
			if w.cells[idx].ID == blockID {
				w.cells[idx].Tile = tile
			}
		}
	}
}

// GetBlocks returns every position in the world whose foreground or
// background cell satisfies predicate.
func (w *World) GetBlocks(predicate func(Cell) bool) []Pos {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Pos
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			pos := Pos{x, y}
			if predicate(w.cells[w.index(pos, LayerForeground)]) ||
				predicate(w.cells[w.index(pos, LayerBackground)]) {
				out = append(out, pos)
			}
		}
	}
	return out
}

// UpdateBlock validates and writes bu's cell, updates its parameters if
// the block's registered param type permits, and inserts the result into
// ProcQueue keyed by position (an existing queued entry for the same
// position is overwritten, collapsing same-tick writes to the last one).
// Returns the written cell on success.
func (w *World) UpdateBlock(bu BlockUpdate) (*Cell, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.setBlockLocked(bu.Pos, bu.Layer, bu.Cell); err != nil {
		return nil, err
	}

	props, _ := w.blockMgr.GetProps(bu.Cell.ID)
	switch props.Param {
	case blocks.ParamNone:
		delete(w.params, bu.Pos)
	default:
		w.params[bu.Pos] = bu.Params
	}

	w.ProcQueue[bu.Pos] = bu
	cell := bu.Cell
	return &cell, nil
}

// MarkAllModified enqueues every current cell for broadcast, used after
// a bulk change such as /clear or /import swaps in a whole new grid.
func (w *World) MarkAllModified() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			pos := Pos{x, y}
			for _, layer := range [2]Layer{LayerForeground, LayerBackground} {
				cell := w.cells[w.index(pos, layer)]
				bu := BlockUpdate{Pos: pos, Layer: layer, Cell: cell}
				if p, ok := w.params[pos]; ok {
					bu.Params = p
				}
				w.ProcQueue[pos] = bu
			}
		}
	}
}

// DrainProcQueue empties and returns the pending update set.
func (w *World) DrainProcQueue() map[Pos]BlockUpdate {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.ProcQueue) == 0 {
		return nil
	}
	drained := w.ProcQueue
	w.ProcQueue = make(map[Pos]BlockUpdate)
	return drained
}
