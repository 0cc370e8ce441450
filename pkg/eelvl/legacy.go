package eelvl

import (
	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/world"
)

// paramKind mirrors EBlockParams::Type: the EELVL wire shape a block's
// extra parameter payload takes, independent of what (if anything) this
// importer does with the decoded value.
type paramKind int

const (
	paramNone paramKind = iota
	paramI    // one s32 (rotation, number, ...)
	paramIII  // three s32 (portal rotation/id/dst_id)
	paramSI   // str16 + s32 (sign, world portal)
	paramSSI  // str16 + str16 + s32 (label)
	paramSSSS // four str16 (npc?)
)

// legacyParamKind is BLOCK_TYPE_LUT from eeo_converter.cpp, scoped to a
// representative subset of its ~150-entry table rather than transcribed in
// full (documented per SPEC_FULL.md's [MODULE eelvl] scope decision): every
// special-cased conversion target (teleporter, spikes, sign, label) is
// present, plus a sample of the plain rotation/number blocks that only need
// their arity right to keep the stream in sync. A legacy ID missing from
// this map decodes as paramNone, which is only wire-compatible for files
// that never place one of the omitted IDs.
var legacyParamKind = map[int]paramKind{
	// types_III
	381: paramIII, // invisible teleporter alias
	242: paramIII, // teleporter

	// types_I: spike rotation variants (every 2nd ID is non-rotatable and
	// carries no entry here, matching the original's comment)
	1625: paramI, 1627: paramI, 1629: paramI, 1631: paramI, 1633: paramI, 1635: paramI,

	// types_I: a representative sample of plain rotation/number blocks
	327: paramI, 328: paramI, 273: paramI, 440: paramI, 276: paramI,
	277: paramI, 279: paramI, 280: paramI, 447: paramI, 449: paramI,
	450: paramI, 451: paramI, 452: paramI, 456: paramI, 457: paramI,
	458: paramI, 464: paramI, 465: paramI, 471: paramI, 477: paramI,

	// types_SI
	374: paramSI, 385: paramSI,

	// types_SSI
	1000: paramSSI,

	// types_SSSS
	1550: paramSSSS, 1551: paramSSSS, 1552: paramSSSS, 1553: paramSSSS, 1554: paramSSSS,
	1555: paramSSSS, 1556: paramSSSS, 1557: paramSSSS, 1558: paramSSSS, 1559: paramSSSS,
	1569: paramSSSS, 1570: paramSSSS, 1571: paramSSSS, 1572: paramSSSS, 1573: paramSSSS,
	1574: paramSSSS, 1575: paramSSSS, 1576: paramSSSS, 1577: paramSSSS, 1578: paramSSSS, 1579: paramSSSS,
}

// spikeLegacyIDs registers importSpike, ported verbatim ((val+3)%4).
var spikeLegacyIDs = map[int32]bool{1625: true, 1627: true, 1629: true, 1631: true, 1633: true, 1635: true}

// coindoorLegacyIDs registers importCoindoor (the raw int, unchanged).
var coindoorLegacyIDs = map[int32]bool{43: true, 165: true} // ID_COINDOOR, ID_COINGATE

// teleporterLegacyIDs registers importTeleporter.
var teleporterLegacyIDs = map[int32]bool{242: true, 381: true} // ID_TELEPORTER and its invisible alias

// importParams is EBlockParams::importParams: the legacy block ID's
// conv_import registration, consulted only for paramI/paramIII legacy IDs.
// A legacy ID with no registration here (e.g. a plain rotation/number
// block) decodes its payload's byte length correctly but does not produce
// a params value, matching the original's importParams returning false.
func importParams(legacyID int32, v [3]int32) (world.BlockParams, bool) {
	switch {
	case spikeLegacyIDs[legacyID]:
		return world.BlockParams{Type: world.ParamsU8, U8: uint8((v[0] + 3) % 4)}, true
	case coindoorLegacyIDs[legacyID]:
		return world.BlockParams{Type: world.ParamsU8, U8: uint8(v[0])}, true
	case teleporterLegacyIDs[legacyID]:
		return world.BlockParams{Type: world.ParamsTeleporter, Teleporter: world.TeleporterParams{
			Rotation: uint8(v[0]), ID: uint8(v[1]), DstID: uint8(v[2]),
		}}, true
	default:
		return world.BlockParams{}, false
	}
}

// legacyIDTranslation is BLOCK_ID_LUT from eeo_converter.cpp: unsupported
// decorative variant IDs remapped onto a supported canonical ID this
// server's block packs actually register. Scoped to a representative
// sample of the original's texture-pack category list plus every
// special-cased remap (spikes, teleporter), per the same documented scope
// decision as legacyParamKind.
var legacyIDTranslation = buildLegacyIDTranslation()

func buildLegacyIDTranslation() map[blocks.ID]blocks.ID {
	const (
		solid  = blocks.ID(9)  // "basic" pack
		yellow = blocks.ID(13) // basic pack, yellow variant
		red    = blocks.ID(12) // basic pack, red variant
		green  = blocks.ID(14) // basic pack, green variant
		slow   = blocks.ID(4)  // action pack id 4: slow-climbable marker
	)

	m := make(map[blocks.ID]blocks.ID)
	setRange := func(target blocks.ID, first, last int) {
		for id := first; id <= last; id++ {
			m[blocks.ID(id)] = target
		}
	}
	setList := func(target blocks.ID, ids ...int) {
		for _, id := range ids {
			m[blocks.ID(id)] = target
		}
	}

	setRange(solid, 17, 21)    // brick
	setRange(solid, 34, 36)    // metal
	setRange(solid, 51, 58)    // glass
	setRange(yellow, 137, 142) // sand -> yellow basic
	setRange(red, 166, 171)    // orange pipes -> red basic
	setRange(yellow, 177, 181) // desert -> yellow basic
	setRange(green, 193, 198)  // jungle -> green basic
	setRange(red, 202, 204)    // lava -> red basic
	setRange(green, 1030, 1034) // nature -> green basic
	setRange(yellow, 1065, 1069) // gold -> yellow basic

	setList(solid,
		182, 1018, 1088, // basic colour variants
		1019, 1020, 1089, 1021, // beta
		1022, 1023, 1024, 1090, // brick colour variants
		22, 32, 33, 1057, 1058, // special
		1025, 1026, 1091, // checker
		157, 206, 214, 1008, 1009, 1010, 1012, 1095, 1153, // gates
	)

	setList(slow,
		459, 460, // slow dot
		98, 99, 118, 120, 424, 472, 1146, 1534, 1563, 1602, // climbable variants
	)

	setRange(blocks.IDSpikes, 1625, 1636) // spike rotation + non-rotatable variants
	m[1580] = blocks.IDSpikes             // not rotatable
	m[381] = blocks.IDTeleporter          // invisible teleporter alias

	return m
}

// resolveBlockID decides which native ID a legacy EELVL block ID maps to,
// mirroring fromFile's `if (!bu.set(block_id))` fallback: a legacy ID that
// is itself a registered native block is used as-is (this server shares
// its numbering with the legacy format for every ID both support); only an
// unregistered ID consults the translation table, and only on the
// foreground layer, matching the original's `if (layer == 0)` guard.
func resolveBlockID(mgr *blocks.Manager, legacyID int32, layer int32) (blocks.ID, bool) {
	id := blocks.ID(uint16(legacyID))
	if mgr.IsRegistered(id) {
		return id, true
	}
	if layer != 0 {
		return 0, false
	}
	translated, ok := legacyIDTranslation[id]
	if !ok || !mgr.IsRegistered(translated) {
		return 0, false
	}
	return translated, true
}
