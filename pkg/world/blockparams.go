package world

import (
	"fmt"

	"github.com/StoreStation/eeland/pkg/wire"
)

// ParamsType tags which variant a BlockParams value carries. Order must
// not change: persisted to disk by pkg/eelvl and pkg/store. Grounded on
// original_source/src/core/blockparams.h's BlockParams::Type enum.
type ParamsType uint8

const (
	ParamsNone ParamsType = iota
	ParamsText
	ParamsU8
	ParamsTeleporter
)

// TeleporterParams is the rotation/id/dst_id triple a teleporter block carries.
type TeleporterParams struct {
	Rotation uint8
	ID       uint8
	DstID    uint8
}

// BlockParams is a tagged union over a block's optional parameter payload.
// A zero value is the None variant.
type BlockParams struct {
	Type       ParamsType
	Text       string
	U8         uint8
	Teleporter TeleporterParams
}

// Read decodes a BlockParams payload matching Type from buf.
func (p *BlockParams) Read(buf *wire.Buffer) error {
	switch p.Type {
	case ParamsNone:
		return nil
	case ParamsText:
		s, err := buf.ReadStr16()
		if err != nil {
			return err
		}
		p.Text = s
		return nil
	case ParamsU8:
		v, err := buf.ReadU8()
		if err != nil {
			return err
		}
		p.U8 = v
		return nil
	case ParamsTeleporter:
		rot, err := buf.ReadU8()
		if err != nil {
			return err
		}
		id, err := buf.ReadU8()
		if err != nil {
			return err
		}
		dst, err := buf.ReadU8()
		if err != nil {
			return err
		}
		p.Teleporter = TeleporterParams{Rotation: rot, ID: id, DstID: dst}
		return nil
	default:
		return fmt.Errorf("world: unknown BlockParams type %d", p.Type)
	}
}

// Write encodes the payload matching Type into buf.
func (p *BlockParams) Write(buf *wire.Buffer) error {
	switch p.Type {
	case ParamsNone:
		return nil
	case ParamsText:
		return buf.WriteStr16(p.Text)
	case ParamsU8:
		buf.WriteU8(p.U8)
		return nil
	case ParamsTeleporter:
		buf.WriteU8(p.Teleporter.Rotation)
		buf.WriteU8(p.Teleporter.ID)
		buf.WriteU8(p.Teleporter.DstID)
		return nil
	default:
		return fmt.Errorf("world: unknown BlockParams type %d", p.Type)
	}
}
