// Package blocks implements the block-ID registry: catalogue of block IDs
// to properties, bulk registration via packs. See SPEC_FULL.md
// [MODULE blocks], grounded on original_source/src/core/blockmanager.cpp
// and blockmanager_reg.cpp, and the teacher's registry-style sparse-vector
// pattern in pkg/server/block.go.
package blocks

import (
	"errors"
	"fmt"
)

// ID is a block identifier; 0 is always air.
type ID uint16

const (
	Air    ID = 0
	MaxID  ID = 8000
)

// DrawType determines collision and layering behaviour.
type DrawType int

const (
	DrawBackground DrawType = iota
	DrawSolid
	DrawAction
	DrawDecoration
)

// ParamType tags which BlockParams variant a block ID carries.
type ParamType int

const (
	ParamNone ParamType = iota
	ParamU8
	ParamStr16
	ParamTeleporter // u8 x3: rotation, id, dst_id
)

// CallbackRef is an opaque, host-allocated handle into the script host's
// function registry (SPEC_FULL.md's [MODULE script]); 0 means "unset".
type CallbackRef int

// Callbacks bundles every script-registrable hook for a block ID.
type Callbacks struct {
	OnPlaced        CallbackRef
	OnIntersect     CallbackRef
	OnIntersectOnce CallbackRef
	OnCollide       CallbackRef
	GetVisuals      CallbackRef
	GUIDef          CallbackRef
}

// Properties is the per-ID metadata owned by the Manager.
type Properties struct {
	ID              ID
	Name            string
	Draw            DrawType
	MinimapColor    uint32
	Param           ParamType
	TileVisuals     bool
	TileDependent   bool // physics depends on the 3-bit tile discriminator
	Viscosity       float32
	Tiles           []byte // valid tile discriminator values, if TileVisuals
	Callbacks       Callbacks
	Pack            string
}

// EffectiveDraw returns the DrawType that actually governs a placed
// instance of this block: tiles[tile] when TileVisuals overrides the
// base draw type per tile discriminator (doors, gates, one-way candy
// gates), else Draw itself.
func (props Properties) EffectiveDraw(tile uint8) DrawType {
	if props.TileVisuals && int(tile) < len(props.Tiles) {
		return DrawType(props.Tiles[tile])
	}
	return props.Draw
}

var (
	ErrDuplicatePack  = errors.New("blocks: duplicate pack name")
	ErrDuplicateBlock = errors.New("blocks: duplicate block id")
	ErrUnknownBlock   = errors.New("blocks: unknown block id")
	ErrIDOutOfRange   = errors.New("blocks: id out of range")
)

// Pack is a named group of block IDs sharing a default draw type and asset.
type Pack struct {
	Name        string
	DefaultType DrawType
	Asset       string
	Blocks      []ID
}

// Manager is the process-wide block-ID registry. Populated once at startup
// with the hard-coded default packs, plus again whenever a world's script
// registers additional packs.
type Manager struct {
	props     []Properties // sparse, indexed by ID; entries are unset until registered
	set       []bool
	packNames map[string]bool
}

// NewManager creates an empty registry sized for the full ID space.
func NewManager() *Manager {
	m := &Manager{
		props:     make([]Properties, MaxID+1),
		set:       make([]bool, MaxID+1),
		packNames: make(map[string]bool),
	}
	// Air is always registered, with no draw (it is never rendered as a block).
	m.props[Air] = Properties{ID: Air, Name: "air", Draw: DrawBackground, Param: ParamNone}
	m.set[Air] = true
	return m
}

// RegisterPack adds every block in pack to the registry. Rejects a
// duplicate pack name or any block ID already registered.
func (m *Manager) RegisterPack(pack Pack) error {
	if m.packNames[pack.Name] {
		return fmt.Errorf("%w: %s", ErrDuplicatePack, pack.Name)
	}
	for _, id := range pack.Blocks {
		if id > MaxID {
			return fmt.Errorf("%w: %d", ErrIDOutOfRange, id)
		}
		if m.set[id] {
			return fmt.Errorf("%w: %d", ErrDuplicateBlock, id)
		}
	}
	for _, id := range pack.Blocks {
		m.props[id] = Properties{
			ID:   id,
			Draw: pack.DefaultType,
			Pack: pack.Name,
		}
		m.set[id] = true
	}
	m.packNames[pack.Name] = true
	return nil
}

// GetProps returns a read-only view of a registered block's properties, or
// false if id is unregistered.
func (m *Manager) GetProps(id ID) (Properties, bool) {
	if int(id) >= len(m.set) || !m.set[id] {
		return Properties{}, false
	}
	return m.props[id], true
}

// GetPropsForModification returns a mutable pointer into the registry,
// intended only for use from pkg/script's env.change_block.
func (m *Manager) GetPropsForModification(id ID) (*Properties, error) {
	if int(id) >= len(m.set) || !m.set[id] {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, id)
	}
	return &m.props[id], nil
}

// IsRegistered reports whether id has been registered (including air).
func (m *Manager) IsRegistered(id ID) bool {
	return int(id) < len(m.set) && m.set[id]
}
