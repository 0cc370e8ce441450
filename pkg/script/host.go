// Package script implements the Lua scripting host: one sandboxed
// *lua.LState per world, the env.* API surface, and the engine→script
// callback dispatch block behaviour hooks into. See SPEC_FULL.md
// [MODULE script]. Grounded on original_source/src/core/script/script.cpp
// (sandbox construction, init/close lifecycle) and script_registration.cpp
// (env.register_pack/change_block/include).
package script

import (
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/world"
)

func readAssetFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("script: read asset %q: %w", path, err)
	}
	return string(data), nil
}

// apiVersion mirrors script.cpp's SCRIPT_API_VERSION, exposed to Lua as
// env.API_VERSION so world scripts can gate on engine capability.
const apiVersion = 4

// bytecodeMagic is the Lua 5.1 precompiled-chunk signature. Sources
// beginning with it are rejected unread, mirroring
// Script::loadFromFile's `first_char == 27` check.
const bytecodeMagic = "\x1bLua"

// globalWhitelist is every name process_api_whitelist keeps in _G.
var globalWhitelist = map[string]bool{
	"_G": true, "assert": true, "pairs": true, "ipairs": true, "next": true,
	"pcall": true, "xpcall": true, "select": true, "tonumber": true,
	"tostring": true, "type": true, "unpack": true,
	"table": true, "math": true, "string": true,
	"print": true, "error": true,
}

// stringWhitelist is the subset of the string library left reachable.
var stringWhitelist = map[string]bool{
	"byte": true, "char": true, "find": true, "format": true, "rep": true, "sub": true,
}

// AssetProvider resolves named assets for env.include/env.require_asset,
// implemented by pkg/media. A nil AssetProvider makes both calls fail
// cleanly instead of touching the filesystem.
type AssetProvider interface {
	AssetPath(name string) (string, bool)
	RequireAsset(name string) bool
}

// Host is one world's Lua sandbox: its interpreter state, the callback
// registry block behaviour is looked up through (Host implements
// pkg/physics.Registry), and the registered event handler table.
type Host struct {
	L       *lua.LState
	BlockMgr *blocks.Manager
	World   *world.World
	Assets  AssetProvider
	log     *zap.Logger

	// ErrorCount is incremented on every recovered Lua runtime fault,
	// pollable by tests per SPEC_FULL.md's [MODULE script] contract.
	ErrorCount int

	callbacks   map[blocks.CallbackRef]*lua.LFunction
	nextRef     blocks.CallbackRef
	eventHandlers map[string][]*lua.LFunction
	onStep      *lua.LFunction

	includeDepth int
}

// New creates a sandboxed Lua state bound to mgr and w.
func New(mgr *blocks.Manager, w *world.World, assets AssetProvider, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{
		L:             lua.NewState(lua.Options{SkipOpenLibs: true}),
		BlockMgr:      mgr,
		World:         w,
		Assets:        assets,
		log:           log,
		callbacks:     make(map[blocks.CallbackRef]*lua.LFunction),
		nextRef:       1, // 0 means "unset", per blocks.CallbackRef's contract
		eventHandlers: make(map[string][]*lua.LFunction),
	}
	h.setup()
	return h
}

// setup opens the whitelisted standard libraries, prunes them, and
// installs the env table. Mirrors Script::init.
func (h *Host) setup() {
	L := h.L
	for _, pair := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(pair.fn))
		L.Push(lua.LString(pair.name))
		L.Call(1, 0)
	}

	pruneGlobals(L)
	pruneStringLibrary(L)

	h.installEnv()
}

// pruneGlobals removes every _G entry not in globalWhitelist, mirroring
// process_api_whitelist_single(L, G_WHITELIST).
func pruneGlobals(L *lua.LState) {
	g := L.Get(lua.GlobalsIndex).(*lua.LTable)
	var drop []string
	g.ForEach(func(k, _ lua.LValue) {
		name := k.String()
		if !globalWhitelist[name] {
			drop = append(drop, name)
		}
	})
	for _, name := range drop {
		g.RawSetString(name, lua.LNil)
	}
}

// pruneStringLibrary removes every string.* entry not in stringWhitelist.
func pruneStringLibrary(L *lua.LState) {
	strTable, ok := L.GetGlobal("string").(*lua.LTable)
	if !ok {
		return
	}
	var drop []string
	strTable.ForEach(func(k, _ lua.LValue) {
		name := k.String()
		if !stringWhitelist[name] {
			drop = append(drop, name)
		}
	})
	for _, name := range drop {
		strTable.RawSetString(name, lua.LNil)
	}
}

// Close releases the interpreter. Callback refs held by pkg/blocks'
// Manager become dangling CallbackRef handles, same as lua_close
// invalidating LUA_REFNIL-able refs in the original.
func (h *Host) Close() {
	h.L.Close()
}

// LoadString compiles and runs src under name, used for the top-level
// world script and every env.include target. A runtime fault is
// recovered, logged with file:line, and counted rather than propagated,
// per SPEC_FULL.md's [MODULE script] error-handling contract.
func (h *Host) LoadString(name, src string) (err error) {
	if strings.HasPrefix(src, bytecodeMagic) {
		return fmt.Errorf("script: loading bytecode is not allowed (%s)", name)
	}

	defer func() {
		if r := recover(); r != nil {
			where := h.L.Where(1)
			h.log.Error("script runtime fault", zap.String("name", name), zap.String("where", where), zap.Any("recovered", r))
			h.ErrorCount++
			err = fmt.Errorf("script: panic in %s: %v", name, r)
		}
	}()

	fn, err := h.L.LoadString(src)
	if err != nil {
		h.log.Error("script load failed", zap.String("name", name), zap.Error(err))
		h.ErrorCount++
		return fmt.Errorf("script: load %s: %w", name, err)
	}
	h.L.Push(fn)
	if err := h.L.PCall(0, lua.MultRet, nil); err != nil {
		h.log.Error("script exec failed", zap.String("name", name), zap.Error(err))
		h.ErrorCount++
		return fmt.Errorf("script: exec %s: %w", name, err)
	}
	return nil
}

// Include loads name via the AssetProvider, mirroring Script::l_include's
// public/private include-depth bookkeeping (a private include doesn't
// get marked required in the media manager).
func (h *Host) Include(name string, public bool) error {
	if h.Assets == nil {
		return fmt.Errorf("script: no asset provider configured")
	}
	path, ok := h.Assets.AssetPath(name)
	if !ok {
		return fmt.Errorf("script: asset %q not found", name)
	}
	if !public {
		h.includeDepth++
		defer func() { h.includeDepth-- }()
	}
	src, err := readAssetFile(path)
	if err != nil {
		return err
	}
	if err := h.LoadString(name, src); err != nil {
		return err
	}
	if h.includeDepth == 0 {
		h.Assets.RequireAsset(name)
	}
	return nil
}

// newRef allocates the next CallbackRef and stores fn against it.
func (h *Host) newRef(fn *lua.LFunction) blocks.CallbackRef {
	ref := h.nextRef
	h.nextRef++
	h.callbacks[ref] = fn
	return ref
}

// callRef invokes the Lua function stored at ref with args, recovering
// and counting any runtime fault rather than propagating it.
func (h *Host) callRef(ref blocks.CallbackRef, args ...lua.LValue) (ret []lua.LValue) {
	if ref == 0 {
		return nil
	}
	fn, ok := h.callbacks[ref]
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("callback fault", zap.String("where", h.L.Where(1)), zap.Any("recovered", r))
			h.ErrorCount++
			ret = nil
		}
	}()

	h.L.Push(fn)
	for _, a := range args {
		h.L.Push(a)
	}
	if err := h.L.PCall(len(args), lua.MultRet, nil); err != nil {
		h.log.Error("callback exec failed", zap.Error(err))
		h.ErrorCount++
		return nil
	}
	top := h.L.GetTop()
	out := make([]lua.LValue, 0, top)
	for i := 1; i <= top; i++ {
		out = append(out, h.L.Get(i))
	}
	h.L.SetTop(0)
	return out
}
