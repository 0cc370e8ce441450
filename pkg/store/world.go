package store

import (
	"database/sql"
	"errors"

	"github.com/StoreStation/eeland/pkg/blocks"
	"github.com/StoreStation/eeland/pkg/wire"
	"github.com/StoreStation/eeland/pkg/world"
)

// ErrNotFound is returned by Load when no row matches the requested key.
var ErrNotFound = errors.New("store: not found")

// WorldStore persists World blobs keyed by WorldIDHash(meta.ID). Grounded
// on original_source/src/server/database_world.cpp's schema and
// load/save contract.
type WorldStore struct {
	db *DB
}

// NewWorldStore creates the worlds table if absent and returns a store
// bound to db.
func NewWorldStore(db *DB) (*WorldStore, error) {
	_, err := db.sql.Exec(
		"CREATE TABLE IF NOT EXISTS worlds (" +
			"id INTEGER UNIQUE, " +
			"width INTEGER, " +
			"height INTEGER, " +
			"owner TEXT, " +
			"plays INTEGER, " +
			"data BLOB, " +
			"PRIMARY KEY(id))")
	if err != nil {
		return nil, err
	}
	return &WorldStore{db: db}, nil
}

// Load populates w (already allocated via world.NewWorld, not yet sized)
// with the persisted size, owner, play count, and block data for
// meta.ID. Returns ErrNotFound if no row exists.
func (s *WorldStore) Load(w *world.World) error {
	meta := w.Meta
	row := s.db.sql.QueryRow(
		"SELECT width, height, owner, plays, data FROM worlds WHERE id = ? LIMIT 1",
		WorldIDHash(meta.ID))

	var width, height, plays int
	var owner string
	var data []byte
	if err := row.Scan(&width, &height, &owner, &plays, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	meta.Owner = owner
	meta.Plays = plays

	if err := w.CreateEmpty(width, height); err != nil {
		return err
	}
	return decodeWorldBlob(w, data)
}

// Save writes w's size, owner, play count, and block data within an
// explicit transaction, replacing any existing row for this world ID.
func (s *WorldStore) Save(w *world.World) error {
	meta := w.Meta
	width, height := w.Size()
	blob, err := encodeWorldBlob(w)
	if err != nil {
		return err
	}

	return s.db.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"REPLACE INTO worlds (id, width, height, owner, plays, data) VALUES (?, ?, ?, ?, ?, ?)",
			WorldIDHash(meta.ID), width, height, meta.Owner, meta.Plays, blob)
		return err
	})
}

// encodeWorldBlob packs every cell on both layers plus its parameters
// into a single wire.Buffer payload, big-endian per pkg/wire's default.
func encodeWorldBlob(w *world.World) ([]byte, error) {
	buf := wire.NewBuffer()
	width, height := w.Size()
	for layer := world.LayerForeground; layer <= world.LayerBackground; layer++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pos := world.Pos{X: x, Y: y}
				cell, _ := w.GetBlock(pos, layer)
				buf.WriteU16(uint16(cell.ID))
				buf.WriteU8(cell.Tile)
			}
		}
	}

	paramPositions := w.GetBlocks(func(world.Cell) bool { return true })
	var withParams []world.Pos
	for _, pos := range paramPositions {
		if _, ok := w.GetParams(pos); ok {
			withParams = append(withParams, pos)
		}
	}
	buf.WriteU32(uint32(len(withParams)))
	for _, pos := range withParams {
		params, _ := w.GetParams(pos)
		buf.WriteI32(int32(pos.X))
		buf.WriteI32(int32(pos.Y))
		if err := params.Write(buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeWorldBlob(w *world.World, data []byte) error {
	buf := wire.NewBufferFrom(data)
	width, height := w.Size()
	for layer := world.LayerForeground; layer <= world.LayerBackground; layer++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				id, err := buf.ReadU16()
				if err != nil {
					return err
				}
				tile, err := buf.ReadU8()
				if err != nil {
					return err
				}
				if id == 0 {
					continue
				}
				if err := w.SetBlock(world.Pos{X: x, Y: y}, layer, world.Cell{ID: blocks.ID(id), Tile: tile}); err != nil {
					return err
				}
			}
		}
	}

	count, err := buf.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		x, err := buf.ReadI32()
		if err != nil {
			return err
		}
		y, err := buf.ReadI32()
		if err != nil {
			return err
		}
		var params world.BlockParams
		if err := params.Read(buf); err != nil {
			return err
		}
		cell, _ := w.GetBlock(world.Pos{X: int(x), Y: int(y)}, world.LayerForeground)
		if _, err := w.UpdateBlock(world.BlockUpdate{
			Pos: world.Pos{X: int(x), Y: int(y)}, Layer: world.LayerForeground,
			Cell: cell, Params: params,
		}); err != nil {
			return err
		}
	}
	return nil
}
