// Package wire implements the length-prefixed, endian-fixed packet codec
// used by every packet in the protocol (see SPEC_FULL.md, [MODULE wire]).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned whenever a read would advance the cursor past
// the end of the written region, or a string/raw length exceeds its limit.
var ErrOutOfRange = errors.New("wire: out of range")

// MaxStringLen is the wire limit for Str16-encoded strings.
const MaxStringLen = 65535

// Buffer is a growable write buffer with an independent bounds-checked read
// cursor. Scalars are little-endian by default; set BigEndian to swap the
// codec for formats that embed big-endian payloads (the EELVL body).
type Buffer struct {
	data     []byte
	readPos  int
	BigEndian bool
}

// NewBuffer creates an empty write buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferFrom wraps existing bytes for reading (and further appending).
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the full underlying slice written so far.
func (b *Buffer) Bytes() []byte { return b.data }

// Remaining reports how many unread bytes are left.
func (b *Buffer) Remaining() int { return len(b.data) - b.readPos }

// Reset clears the buffer for reuse.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.readPos = 0
}

func (b *Buffer) order() binary.ByteOrder {
	if b.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (b *Buffer) take(n int) ([]byte, error) {
	if n < 0 || b.readPos+n > len(b.data) {
		return nil, ErrOutOfRange
	}
	out := b.data[b.readPos : b.readPos+n]
	b.readPos += n
	return out, nil
}

// ReadRawNoCopy advances the cursor by up to nMax bytes (fewer if the
// buffer is shorter) and returns a slice aliasing the underlying array
// without copying. The cursor may be partially rewound with UngetRaw.
func (b *Buffer) ReadRawNoCopy(nMax int) []byte {
	avail := b.Remaining()
	n := nMax
	if n > avail {
		n = avail
	}
	out := b.data[b.readPos : b.readPos+n]
	b.readPos += n
	return out
}

// UngetRaw rewinds the read cursor by n bytes, re-exposing bytes that were
// consumed by a previous ReadRawNoCopy.
func (b *Buffer) UngetRaw(n int) error {
	if n < 0 || b.readPos-n < 0 {
		return ErrOutOfRange
	}
	b.readPos -= n
	return nil
}

// ReadRaw copies exactly n bytes into dst-sized output.
func (b *Buffer) ReadRaw(n int) ([]byte, error) {
	raw, err := b.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

// WriteRaw appends src verbatim.
func (b *Buffer) WriteRaw(src []byte) {
	b.data = append(b.data, src...)
}

// WritePreallocStart appends n zero bytes and returns a slice over them for
// in-place decoder output, plus the offset to pass to WritePreallocEnd.
func (b *Buffer) WritePreallocStart(n int) (slice []byte, offset int) {
	offset = len(b.data)
	b.data = append(b.data, make([]byte, n)...)
	return b.data[offset : offset+n], offset
}

// WritePreallocEnd truncates the preallocated region down to the number of
// bytes actually produced by the decoder.
func (b *Buffer) WritePreallocEnd(offset, actual int) {
	b.data = b.data[:offset+actual]
}

func (b *Buffer) ReadU8() (uint8, error) {
	raw, err := b.take(1)
	if err != nil {
		return 0, err
	}
	return raw[0], nil
}

func (b *Buffer) WriteU8(v uint8) { b.data = append(b.data, v) }

func (b *Buffer) ReadI8() (int8, error) {
	v, err := b.ReadU8()
	return int8(v), err
}

func (b *Buffer) WriteI8(v int8) { b.WriteU8(uint8(v)) }

func (b *Buffer) ReadU16() (uint16, error) {
	raw, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return b.order().Uint16(raw), nil
}

func (b *Buffer) WriteU16(v uint16) {
	var tmp [2]byte
	b.order().PutUint16(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

func (b *Buffer) ReadI16() (int16, error) {
	v, err := b.ReadU16()
	return int16(v), err
}

func (b *Buffer) WriteI16(v int16) { b.WriteU16(uint16(v)) }

func (b *Buffer) ReadU32() (uint32, error) {
	raw, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return b.order().Uint32(raw), nil
}

func (b *Buffer) WriteU32(v uint32) {
	var tmp [4]byte
	b.order().PutUint32(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

func (b *Buffer) ReadI32() (int32, error) {
	v, err := b.ReadU32()
	return int32(v), err
}

func (b *Buffer) WriteI32(v int32) { b.WriteU32(uint32(v)) }

func (b *Buffer) ReadU64() (uint64, error) {
	raw, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return b.order().Uint64(raw), nil
}

func (b *Buffer) WriteU64(v uint64) {
	var tmp [8]byte
	b.order().PutUint64(tmp[:], v)
	b.data = append(b.data, tmp[:]...)
}

func (b *Buffer) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	return int64(v), err
}

func (b *Buffer) WriteI64(v int64) { b.WriteU64(uint64(v)) }

func (b *Buffer) ReadF32() (float32, error) {
	v, err := b.ReadU32()
	return math.Float32frombits(v), err
}

func (b *Buffer) WriteF32(v float32) { b.WriteU32(math.Float32bits(v)) }

func (b *Buffer) ReadF64() (float64, error) {
	v, err := b.ReadU64()
	return math.Float64frombits(v), err
}

func (b *Buffer) WriteF64(v float64) { b.WriteU64(math.Float64bits(v)) }

func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadU8()
	return v != 0, err
}

func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteU8(1)
	} else {
		b.WriteU8(0)
	}
}

// ReadStr16 reads a u16-length-prefixed string. Fails with ErrOutOfRange if
// the declared length exceeds MaxStringLen or the remaining buffer.
func (b *Buffer) ReadStr16() (string, error) {
	n, err := b.ReadU16()
	if err != nil {
		return "", err
	}
	if int(n) > MaxStringLen {
		return "", ErrOutOfRange
	}
	raw, err := b.take(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// WriteStr16 writes a u16-length-prefixed string. len(s) must be <= MaxStringLen.
func (b *Buffer) WriteStr16(s string) error {
	if len(s) > MaxStringLen {
		return ErrOutOfRange
	}
	b.WriteU16(uint16(len(s)))
	b.data = append(b.data, s...)
	return nil
}

// Dump renders up to n unread bytes as a hex/ASCII trace, for debugging.
func (b *Buffer) Dump(n int) string {
	avail := b.Remaining()
	if n > avail {
		n = avail
	}
	raw := b.data[b.readPos : b.readPos+n]
	out := make([]byte, 0, n*4)
	var ascii []byte
	for i, c := range raw {
		if i%16 == 0 && i != 0 {
			out = append(out, ' ')
			out = append(out, ascii...)
			out = append(out, '\n')
			ascii = ascii[:0]
		}
		out = append(out, []byte(fmt.Sprintf("%02x ", c))...)
		if c >= 0x20 && c < 0x7f {
			ascii = append(ascii, c)
		} else {
			ascii = append(ascii, '.')
		}
	}
	if len(ascii) > 0 {
		out = append(out, ' ')
		out = append(out, ascii...)
	}
	return string(out)
}
