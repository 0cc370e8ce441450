package blocks

// Symbolic block IDs referenced by the default packs, mirrored from
// original_source/src/core/types.h's Block::BlockIDs enum.
const (
	IDKeyR       ID = 6
	IDKeyG       ID = 7
	IDKeyB       ID = 8
	IDDoorR      ID = 23
	IDDoorG      ID = 24
	IDDoorB      ID = 25
	IDGateR      ID = 26
	IDGateG      ID = 27
	IDGateB      ID = 28
	IDCoindoor   ID = 43
	IDSecret     ID = 50
	IDCoin       ID = 100
	IDCoingate   ID = 165
	IDTeleporter ID = 242
	IDSpawn      ID = 255
	IDBlackReal  ID = 300
	IDBlackFake  ID = 301
	IDTimedGate1 ID = 350
	IDTimedGate2 ID = 351
	IDPiano      ID = 355
	IDCheckpoint ID = 360
	IDSpikes     ID = 361
	IDText       ID = 1000
)

func idRange(first, last ID) []ID {
	ids := make([]ID, 0, int(last-first)+1)
	for id := first; id <= last; id++ {
		ids = append(ids, id)
	}
	return ids
}

func idList(ids ...ID) []ID { return ids }

// DoPackRegistration installs the hard-coded default packs, mirroring
// original_source/src/core/blockmanager_reg.cpp's BlockManager::doPackRegistration.
// Callback wiring for these default IDs (step/collide handles) is
// hard-coded Go in pkg/script's builtinStep/builtinCollide tables, not
// the Callbacks field on Properties: that field is reserved for
// per-world Lua env.register_pack calls, mirroring how the original
// engine's doPackRegistration assigns raw C++ function pointers
// (step_arrow_*, onCollide_coindoor, ...) directly rather than going
// through its script-callback indirection.
func (m *Manager) DoPackRegistration() error {
	if len(m.packNames) > 0 {
		return nil
	}

	packs := []Pack{
		{Name: "basic", DefaultType: DrawSolid, Blocks: idRange(9, 15)},
		{Name: "beta", DefaultType: DrawSolid, Blocks: idRange(37, 42)},
		{Name: "doors", DefaultType: DrawSolid, Blocks: idList(IDDoorR, IDDoorG, IDDoorB, IDGateR, IDGateG, IDGateB)},
		{Name: "factory", DefaultType: DrawSolid, Blocks: idRange(45, 49)},
		{Name: "candy", DefaultType: DrawSolid, Blocks: idRange(60, 67)},
		{Name: "action", DefaultType: DrawAction, Blocks: idRange(0, 4)},
		{Name: "boost", DefaultType: DrawAction, Blocks: idRange(114, 117)},
		{Name: "keys", DefaultType: DrawAction, Blocks: idList(IDKeyR, IDKeyG, IDKeyB)},
		{Name: "spike", DefaultType: DrawAction, Blocks: idList(IDCheckpoint, IDSpikes)},
		{Name: "hidden", DefaultType: DrawAction, Blocks: idList(IDSecret, IDBlackReal, IDBlackFake)},
		{Name: "owner", DefaultType: DrawAction, Blocks: idList(IDSpawn, IDText)},
		{Name: "coins", DefaultType: DrawAction, Blocks: idList(IDCoin, IDCoindoor, IDCoingate)},
		{Name: "timed_gates", DefaultType: DrawAction, Blocks: idList(IDTimedGate1, IDTimedGate2)},
		{Name: "teleporter", DefaultType: DrawAction, Blocks: idList(IDTeleporter)},
		{Name: "music", DefaultType: DrawAction, Blocks: idList(IDPiano)},
		{Name: "spring", DefaultType: DrawDecoration, Blocks: idRange(233, 240)},
		{Name: "simple", DefaultType: DrawBackground, Blocks: idRange(500, 506)},
	}

	for _, p := range packs {
		if err := m.RegisterPack(p); err != nil {
			return err
		}
	}

	// Block 0 ("action" pack) doubles as a teleporter-style destination
	// marker with a fully transparent minimap color.
	m.props[0].MinimapColor = 0xFF000000
	m.props[4].Viscosity = 0.25

	// Parameterized blocks: fix the param type that each ID carries for its
	// lifetime (BlockParams' tag is fixed per block ID, §3).
	m.props[IDSpikes].Param = ParamU8
	m.props[IDCoindoor].Param = ParamU8
	m.props[IDCoingate].Param = ParamU8
	m.props[IDTeleporter].Param = ParamTeleporter
	m.props[IDPiano].Param = ParamU8
	m.props[IDText].Param = ParamStr16

	// Secret/black-fake blocks render opaque until touched once; the
	// minimap shows them as fully transparent to the uninitiated client.
	m.props[IDSecret].MinimapColor = 0x00000001

	// Candy gates are one-way: tile 0 decorative (walk-through), tile 1 solid.
	for id := ID(61); id <= 64; id++ {
		m.props[id].TileVisuals = true
		m.props[id].Tiles = []byte{byte(DrawDecoration), byte(DrawSolid)}
	}

	// Doors/gates: two-tile toggle, gates opening where doors close and
	// vice versa (BlockManager::doPackRegistration's setTiles pairing).
	for _, id := range []ID{IDGateR, IDGateG, IDGateB} {
		m.props[id].TileVisuals = true
		m.props[id].Tiles = []byte{byte(DrawAction), byte(DrawSolid)}
	}
	for _, id := range []ID{IDDoorR, IDDoorG, IDDoorB} {
		m.props[id].TileVisuals = true
		m.props[id].Tiles = []byte{byte(DrawSolid), byte(DrawAction)}
	}

	// Timed gate 1 carries a 10-tile countdown animation; gate 2's tiles
	// are filled by DoPackPostprocess, recycling gate 1's texture strip.
	m.props[IDTimedGate1].TileVisuals = true
	m.props[IDTimedGate1].Tiles = []byte{
		byte(DrawAction), byte(DrawAction), byte(DrawAction), byte(DrawAction), byte(DrawAction),
		byte(DrawSolid), byte(DrawSolid), byte(DrawSolid), byte(DrawSolid), byte(DrawSolid),
	}
	m.props[IDTimedGate2].TileVisuals = true

	return nil
}

// DoPackPostprocess patches derived packs by copying tile arrays between
// IDs, mirroring BlockManager::doPackPostprocess's gate-2 texture recycling.
func (m *Manager) DoPackPostprocess() {
	gate1, err1 := m.GetPropsForModification(IDTimedGate1)
	gate2, err2 := m.GetPropsForModification(IDTimedGate2)
	if err1 != nil || err2 != nil {
		return
	}
	if len(gate1.Tiles) == 0 {
		return
	}
	gate2.Tiles = make([]byte, len(gate1.Tiles))
	for i := range gate2.Tiles {
		gate2.Tiles[i] = gate1.Tiles[(i+5)%len(gate1.Tiles)]
	}
}
