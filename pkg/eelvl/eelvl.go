// Package eelvl implements the legacy .eelvl world file codec: a
// big-endian, DEFLATE-compressed block-list format this server can import
// from and export to, for compatibility with worlds authored against the
// original client. See SPEC_FULL.md [MODULE eelvl]. Grounded on
// original_source/src/server/eeo_converter.cpp (header layout, block-list
// framing, barebone compression) and pkg/compress/pkg/wire for the codec
// primitives.
package eelvl

import (
	"bytes"
	"fmt"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/compress"
	"github.com/StoreStation/eeland/pkg/wire"
	"github.com/StoreStation/eeland/pkg/world"
)

// header is the fixed EELVL preamble read by read_eelvl_header /
// written by EEOconverter::toFile. Most fields the legacy client stores
// (gravity, background colour, crew metadata, minimap toggle) have no
// equivalent in this server's world.Meta and are read-and-discarded on
// import, written as the original's own defaults on export — the same
// lossy round-trip the reference implementation itself performs.
type header struct {
	Owner  string
	Title  string
	Width  int
	Height int
}

func readHeader(buf *wire.Buffer) (header, error) {
	var h header
	var err error
	if h.Owner, err = buf.ReadStr16(); err != nil {
		return h, err
	}
	if h.Title, err = buf.ReadStr16(); err != nil {
		return h, err
	}
	w32, err := buf.ReadI32()
	if err != nil {
		return h, err
	}
	h32, err := buf.ReadI32()
	if err != nil {
		return h, err
	}
	h.Width, h.Height = int(w32), int(h32)

	if _, err = buf.ReadF32(); err != nil { // gravity
		return h, err
	}
	if _, err = buf.ReadU32(); err != nil { // background colour
		return h, err
	}
	if _, err = buf.ReadStr16(); err != nil { // description
		return h, err
	}
	if _, err = buf.ReadU8(); err != nil { // campaign flag
		return h, err
	}
	if _, err = buf.ReadStr16(); err != nil { // crew id
		return h, err
	}
	if _, err = buf.ReadStr16(); err != nil { // crew name
		return h, err
	}
	if _, err = buf.ReadI32(); err != nil { // crew status
		return h, err
	}
	if _, err = buf.ReadU8(); err != nil { // minimap enabled
		return h, err
	}
	if _, err = buf.ReadStr16(); err != nil { // owner id, often "made offline"
		return h, err
	}
	return h, nil
}

func writeHeader(buf *wire.Buffer, h header) error {
	if err := buf.WriteStr16(h.Owner); err != nil {
		return err
	}
	if err := buf.WriteStr16(h.Title); err != nil {
		return err
	}
	buf.WriteI32(int32(h.Width))
	buf.WriteI32(int32(h.Height))
	buf.WriteF32(1)  // gravity: default factor
	buf.WriteU32(0)  // background colour: default
	if err := buf.WriteStr16(""); err != nil {
		return err
	}
	buf.WriteU8(0) // campaign
	if err := buf.WriteStr16(""); err != nil {
		return err
	}
	if err := buf.WriteStr16(""); err != nil {
		return err
	}
	buf.WriteI32(0) // crew status
	buf.WriteU8(1)  // minimap enabled
	return buf.WriteStr16("exported from eeland")
}

// readPosArray decodes a u32-byte-length-prefixed array of u16 positions,
// mirroring eeo_converter.cpp's readArrU16x32.
func readPosArray(buf *wire.Buffer) ([]uint16, error) {
	byteLen, err := buf.ReadU32()
	if err != nil {
		return nil, err
	}
	count := int(byteLen / 2)
	out := make([]uint16, count)
	for i := 0; i < count; i++ {
		v, err := buf.ReadU16()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writePosArray(buf *wire.Buffer, values []uint16) {
	buf.WriteU32(uint32(len(values)) * 2)
	for _, v := range values {
		buf.WriteU16(v)
	}
}

// Import decodes an .eelvl file into a freshly built World bound to mgr.
// The world is fully constructed before being returned; a decode failure
// never mutates a caller-owned world, matching spec.md §7's
// build-then-swap codec policy.
func Import(mgr *blocks.Manager, data []byte) (*world.World, error) {
	decomp := compress.NewDecompressor(bytes.NewReader(data))
	decomp.Barebone = true
	raw, err := decomp.Decompress()
	if err != nil {
		return nil, fmt.Errorf("eelvl: decompress: %w", err)
	}

	buf := wire.NewBufferFrom(raw)
	buf.BigEndian = true

	h, err := readHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("eelvl: header: %w", err)
	}
	if h.Width < world.MinSize || h.Height < world.MinSize {
		return nil, fmt.Errorf("eelvl: invalid size %dx%d", h.Width, h.Height)
	}

	meta := world.NewMeta("", h.Owner)
	meta.Title = h.Title
	w := world.NewWorld(mgr, meta)
	if err := w.CreateEmpty(h.Width, h.Height); err != nil {
		return nil, fmt.Errorf("eelvl: create empty: %w", err)
	}

	for buf.Remaining() > 0 {
		legacyID, err := buf.ReadI32()
		if err != nil {
			break // end of block-list data, matches fromFile's catch+break
		}

		layerRaw, err := buf.ReadI32()
		if err != nil {
			return nil, fmt.Errorf("eelvl: truncated layer field: %w", err)
		}
		if layerRaw < 0 || layerRaw > 1 {
			return nil, fmt.Errorf("eelvl: block data mismatch: bad layer %d", layerRaw)
		}
		layer := world.Layer(layerRaw)

		xs, err := readPosArray(buf)
		if err != nil {
			return nil, fmt.Errorf("eelvl: truncated x array: %w", err)
		}
		ys, err := readPosArray(buf)
		if err != nil {
			return nil, fmt.Errorf("eelvl: truncated y array: %w", err)
		}

		params, hasParams, err := readParams(buf, legacyID)
		if err != nil {
			return nil, fmt.Errorf("eelvl: params: %w", err)
		}

		resolvedID, ok := resolveBlockID(mgr, legacyID, layerRaw)
		if !ok || resolvedID == 0 {
			continue // unresolvable or air: do not add to the map
		}

		n := len(xs)
		if len(ys) < n {
			n = len(ys)
		}
		for i := 0; i < n; i++ {
			pos := world.Pos{X: int(xs[i]), Y: int(ys[i])}
			cell := world.Cell{ID: resolvedID}
			if hasParams {
				_, _ = w.UpdateBlock(world.BlockUpdate{Pos: pos, Layer: layer, Cell: cell, Params: params})
			} else {
				_ = w.SetBlock(pos, layer, cell)
			}
		}
	}

	return w, nil
}

// readParams consumes legacyID's parameter payload (if any) per
// legacyParamKind, returning the decoded world.BlockParams when a
// conv_import conversion applies.
func readParams(buf *wire.Buffer, legacyID int32) (world.BlockParams, bool, error) {
	switch legacyParamKind[int(legacyID)] {
	case paramNone:
		return world.BlockParams{}, false, nil
	case paramI:
		v0, err := buf.ReadI32()
		if err != nil {
			return world.BlockParams{}, false, err
		}
		params, ok := importParams(legacyID, [3]int32{v0, 0, 0})
		return params, ok, nil
	case paramIII:
		v0, err := buf.ReadI32()
		if err != nil {
			return world.BlockParams{}, false, err
		}
		v1, err := buf.ReadI32()
		if err != nil {
			return world.BlockParams{}, false, err
		}
		v2, err := buf.ReadI32()
		if err != nil {
			return world.BlockParams{}, false, err
		}
		params, ok := importParams(legacyID, [3]int32{v0, v1, v2})
		return params, ok, nil
	case paramSI:
		if _, err := buf.ReadStr16(); err != nil {
			return world.BlockParams{}, false, err
		}
		if _, err := buf.ReadI32(); err != nil {
			return world.BlockParams{}, false, err
		}
		return world.BlockParams{}, false, nil
	case paramSSI:
		if _, err := buf.ReadStr16(); err != nil {
			return world.BlockParams{}, false, err
		}
		if _, err := buf.ReadStr16(); err != nil {
			return world.BlockParams{}, false, err
		}
		if _, err := buf.ReadI32(); err != nil {
			return world.BlockParams{}, false, err
		}
		return world.BlockParams{}, false, nil
	case paramSSSS:
		for i := 0; i < 4; i++ {
			if _, err := buf.ReadStr16(); err != nil {
				return world.BlockParams{}, false, err
			}
		}
		return world.BlockParams{}, false, nil
	default:
		return world.BlockParams{}, false, nil
	}
}

// Export encodes w as an .eelvl file. Mirrors EEOconverter::toFile,
// including its known incompleteness: every block instance of a given ID
// is written with a zero/default parameter payload regardless of what
// BlockParams it actually carries in the world (the original's own
// "TODO: What about coin doors, signs, portals?" — preserved here rather
// than silently fixed, since teleporter/coindoor state round-tripping
// through .eelvl was never implemented upstream either).
func Export(w *world.World) ([]byte, error) {
	width, height := w.Size()

	buf := wire.NewBuffer()
	buf.BigEndian = true

	owner := ""
	title := ""
	if w.Meta != nil {
		owner = w.Meta.Owner
		title = w.Meta.Title
	}
	if err := writeHeader(buf, header{Owner: owner, Title: title, Width: width, Height: height}); err != nil {
		return nil, fmt.Errorf("eelvl: header: %w", err)
	}

	fg := map[blocks.ID][]world.Pos{}
	bg := map[blocks.ID][]world.Pos{}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pos := world.Pos{X: x, Y: y}
			if cell, ok := w.GetBlock(pos, world.LayerForeground); ok && cell.ID != 0 {
				fg[cell.ID] = append(fg[cell.ID], pos)
			}
			if cell, ok := w.GetBlock(pos, world.LayerBackground); ok && cell.ID != 0 {
				bg[cell.ID] = append(bg[cell.ID], pos)
			}
		}
	}

	if err := writeBlockGroup(buf, fg, 0); err != nil {
		return nil, err
	}
	if err := writeBlockGroup(buf, bg, 1); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	comp, err := compress.NewCompressor(&out)
	if err != nil {
		return nil, fmt.Errorf("eelvl: compressor init: %w", err)
	}
	comp.Barebone = true
	if _, err := comp.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("eelvl: compress: %w", err)
	}
	if err := comp.Finish(); err != nil {
		return nil, fmt.Errorf("eelvl: compress finish: %w", err)
	}
	return out.Bytes(), nil
}

func writeBlockGroup(buf *wire.Buffer, groups map[blocks.ID][]world.Pos, layer int32) error {
	for id, positions := range groups {
		buf.WriteI32(int32(id))
		buf.WriteI32(layer)

		xs := make([]uint16, len(positions))
		ys := make([]uint16, len(positions))
		for i, pos := range positions {
			xs[i] = uint16(pos.X)
			ys[i] = uint16(pos.Y)
		}
		writePosArray(buf, xs)
		writePosArray(buf, ys)

		if layer != 0 {
			continue // background entries carry no parameter payload
		}
		switch legacyParamKind[int(id)] {
		case paramNone:
		case paramI:
			buf.WriteI32(0)
		case paramIII:
			buf.WriteI32(0)
			buf.WriteI32(0)
			buf.WriteI32(0)
		case paramSI:
			if err := buf.WriteStr16(""); err != nil {
				return err
			}
			buf.WriteI32(0)
		case paramSSI:
			if err := buf.WriteStr16(""); err != nil {
				return err
			}
			if err := buf.WriteStr16(""); err != nil {
				return err
			}
			buf.WriteI32(0)
		case paramSSSS:
			for i := 0; i < 4; i++ {
				if err := buf.WriteStr16(""); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
