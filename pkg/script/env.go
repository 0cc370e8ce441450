package script

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/world"
)

// installEnv builds the global `env` table: registration functions,
// the world sub-table, and the event API. Mirrors Script::init's
// `lua_setglobal(L, "env")` block.
func (h *Host) installEnv() {
	L := h.L
	env := L.NewTable()

	env.RawSetString("API_VERSION", lua.LNumber(apiVersion))
	env.RawSetString("include", L.NewFunction(h.lInclude))
	env.RawSetString("require_asset", L.NewFunction(h.lRequireAsset))
	env.RawSetString("register_pack", L.NewFunction(h.lRegisterPack))
	env.RawSetString("change_block", L.NewFunction(h.lChangeBlock))
	env.RawSetString("register_event", L.NewFunction(h.lRegisterEvent))
	env.RawSetString("send_event", L.NewFunction(h.lSendEvent))
	env.RawSetString("event_handlers", L.NewTable())

	worldTbl := L.NewTable()
	worldTbl.RawSetString("get_block", L.NewFunction(h.lWorldGetBlock))
	worldTbl.RawSetString("get_blocks_in_range", L.NewFunction(h.lWorldGetBlocksInRange))
	worldTbl.RawSetString("get_params", L.NewFunction(h.lWorldGetParams))
	worldTbl.RawSetString("set_tile", L.NewFunction(h.lWorldSetTile))
	worldTbl.RawSetString("set_block", L.NewFunction(h.lWorldSetBlock))
	env.RawSetString("world", worldTbl)

	L.SetGlobal("env", env)
}

func (h *Host) lInclude(L *lua.LState) int {
	name := L.CheckString(1)
	public := true
	if scope := L.OptString(2, ""); scope != "" {
		public = scope != "server"
	}
	if err := h.Include(name, public); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (h *Host) lRequireAsset(L *lua.LState) int {
	name := L.CheckString(1)
	if h.Assets == nil || !h.Assets.RequireAsset(name) {
		L.RaiseError("not found")
	}
	return 0
}

// lRegisterPack implements env.register_pack{name=..., blocks={...}, default_type=...}.
func (h *Host) lRegisterPack(L *lua.LState) int {
	tbl := L.CheckTable(1)
	name, ok := tbl.RawGetString("name").(lua.LString)
	if !ok {
		L.RaiseError("missing pack name")
	}

	var ids []blocks.ID
	if blockList, ok := tbl.RawGetString("blocks").(*lua.LTable); ok {
		blockList.ForEach(func(_, v lua.LValue) {
			if n, ok := v.(lua.LNumber); ok {
				ids = append(ids, blocks.ID(n))
			}
		})
	}

	defaultType := blocks.DrawSolid
	if n, ok := tbl.RawGetString("default_type").(lua.LNumber); ok {
		defaultType = blocks.DrawType(int(n))
	}

	pack := blocks.Pack{Name: string(name), DefaultType: defaultType, Blocks: ids}
	if err := h.BlockMgr.RegisterPack(pack); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

// lChangeBlock implements env.change_block(id, {on_placed=..., viscosity=..., ...}).
func (h *Host) lChangeBlock(L *lua.LState) int {
	idNum := L.CheckNumber(1)
	cfg := L.CheckTable(2)

	props, err := h.BlockMgr.GetPropsForModification(blocks.ID(idNum))
	if err != nil {
		L.RaiseError("%v", err)
	}

	bindCallback := func(field string, dst *blocks.CallbackRef) {
		if fn, ok := cfg.RawGetString(field).(*lua.LFunction); ok {
			*dst = h.newRef(fn)
		}
	}
	bindCallback("on_placed", &props.Callbacks.OnPlaced)
	bindCallback("on_intersect_once", &props.Callbacks.OnIntersectOnce)
	bindCallback("on_intersect", &props.Callbacks.OnIntersect)
	bindCallback("on_collide", &props.Callbacks.OnCollide)

	if v, ok := cfg.RawGetString("viscosity").(lua.LNumber); ok {
		props.Viscosity = float32(v)
	}
	if v, ok := cfg.RawGetString("tile_dependent_physics").(lua.LBool); ok {
		props.TileDependent = bool(v)
	}
	if v, ok := cfg.RawGetString("minimap_color").(lua.LNumber); ok {
		props.MinimapColor = uint32(v)
	}
	if v, ok := cfg.RawGetString("params").(lua.LNumber); ok {
		props.Param = blocks.ParamType(int(v))
	}
	return 0
}

func (h *Host) lRegisterEvent(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)
	h.eventHandlers[name] = append(h.eventHandlers[name], fn)
	return 0
}

// lSendEvent dispatches name to every handler registered for it.
func (h *Host) lSendEvent(L *lua.LState) int {
	name := L.CheckString(1)
	payload := L.Get(2)
	for _, fn := range h.eventHandlers[name] {
		L.Push(fn)
		L.Push(payload)
		if err := L.PCall(1, 0, nil); err != nil {
			h.ErrorCount++
		}
	}
	return 0
}

func toPos(L *lua.LState, idx int) world.Pos {
	tbl := L.CheckTable(idx)
	x, _ := tbl.RawGetString("x").(lua.LNumber)
	y, _ := tbl.RawGetString("y").(lua.LNumber)
	return world.Pos{X: int(x), Y: int(y)}
}

func pushPos(L *lua.LState, pos world.Pos) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("x", lua.LNumber(pos.X))
	tbl.RawSetString("y", lua.LNumber(pos.Y))
	return tbl
}

func (h *Host) lWorldGetBlock(L *lua.LState) int {
	pos := toPos(L, 1)
	layer := world.Layer(L.OptInt(2, 0))
	cell, ok := h.World.GetBlock(pos, layer)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(cell.ID))
	L.Push(lua.LNumber(cell.Tile))
	return 2
}

// positionRangeFromTable reads a {kind=..., ...} table into a
// world.PositionRange, mirroring Script::get_position_range.
func positionRangeFromTable(L *lua.LState, idx int) world.PositionRange {
	tbl := L.CheckTable(idx)
	kind, _ := tbl.RawGetString("kind").(lua.LString)
	switch string(kind) {
	case "area":
		minTbl, _ := tbl.RawGetString("min").(*lua.LTable)
		maxTbl, _ := tbl.RawGetString("max").(*lua.LTable)
		minPos := tableToPos(minTbl)
		maxPos := tableToPos(maxTbl)
		return world.Area(minPos, maxPos)
	case "circle":
		centerTbl, _ := tbl.RawGetString("center").(*lua.LTable)
		radius, _ := tbl.RawGetString("radius").(lua.LNumber)
		return world.Circle(tableToPos(centerTbl), int(radius))
	case "world":
		return world.EntireWorld()
	default:
		oneTbl, _ := tbl.RawGetString("pos").(*lua.LTable)
		return world.OneBlock(tableToPos(oneTbl))
	}
}

func tableToPos(tbl *lua.LTable) world.Pos {
	if tbl == nil {
		return world.Pos{}
	}
	x, _ := tbl.RawGetString("x").(lua.LNumber)
	y, _ := tbl.RawGetString("y").(lua.LNumber)
	return world.Pos{X: int(x), Y: int(y)}
}

func (h *Host) lWorldGetBlocksInRange(L *lua.LState) int {
	rng := positionRangeFromTable(L, 1)
	out := L.NewTable()
	var pos world.Pos
	i := 1
	for ok := h.World.IteratorStart(rng, &pos); ok; ok = h.World.IteratorNext(rng, &pos) {
		out.RawSetInt(i, pushPos(L, pos))
		i++
	}
	L.Push(out)
	return 1
}

func (h *Host) lWorldGetParams(L *lua.LState) int {
	pos := toPos(L, 1)
	params, ok := h.World.GetParams(pos)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	out := L.NewTable()
	switch params.Type {
	case world.ParamsText:
		out.RawSetString("text", lua.LString(params.Text))
	case world.ParamsU8:
		out.RawSetString("value", lua.LNumber(params.U8))
	case world.ParamsTeleporter:
		out.RawSetString("rotation", lua.LNumber(params.Teleporter.Rotation))
		out.RawSetString("id", lua.LNumber(params.Teleporter.ID))
		out.RawSetString("dst_id", lua.LNumber(params.Teleporter.DstID))
	}
	L.Push(out)
	return 1
}

func (h *Host) lWorldSetTile(L *lua.LState) int {
	rng := positionRangeFromTable(L, 1)
	id := blocks.ID(L.CheckNumber(2))
	tile := uint8(L.CheckNumber(3))
	h.World.SetBlockTiles(rng, id, tile)
	return 0
}

func (h *Host) lWorldSetBlock(L *lua.LState) int {
	pos := toPos(L, 1)
	layer := world.Layer(L.OptInt(2, 0))
	id := blocks.ID(L.CheckNumber(3))
	tile := uint8(L.OptInt(4, 0))
	if err := h.World.SetBlock(pos, layer, world.Cell{ID: id, Tile: tile}); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}
