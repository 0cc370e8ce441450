package wire

import "testing"

func TestScalarRoundTrip(t *testing.T) {
	b := NewBuffer()
	b.WriteU8(0xAB)
	b.WriteI16(-1234)
	b.WriteU32(0xDEADBEEF)
	b.WriteI64(-9001)
	b.WriteF32(3.25)
	b.WriteF64(-6.5)
	b.WriteBool(true)

	r := NewBufferFrom(b.Bytes())
	if v, err := r.ReadU8(); err != nil || v != 0xAB {
		t.Fatalf("ReadU8 = %v, %v", v, err)
	}
	if v, err := r.ReadI16(); err != nil || v != -1234 {
		t.Fatalf("ReadI16 = %v, %v", v, err)
	}
	if v, err := r.ReadU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadU32 = %v, %v", v, err)
	}
	if v, err := r.ReadI64(); err != nil || v != -9001 {
		t.Fatalf("ReadI64 = %v, %v", v, err)
	}
	if v, err := r.ReadF32(); err != nil || v != 3.25 {
		t.Fatalf("ReadF32 = %v, %v", v, err)
	}
	if v, err := r.ReadF64(); err != nil || v != -6.5 {
		t.Fatalf("ReadF64 = %v, %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("ReadBool = %v, %v", v, err)
	}
}

func TestStr16RoundTrip(t *testing.T) {
	cases := []string{"", "hello", "with\x00embedded\x00zero", string(make([]byte, 1000))}
	for _, s := range cases {
		b := NewBuffer()
		if err := b.WriteStr16(s); err != nil {
			t.Fatalf("WriteStr16(%q): %v", s, err)
		}
		r := NewBufferFrom(b.Bytes())
		got, err := r.ReadStr16()
		if err != nil {
			t.Fatalf("ReadStr16: %v", err)
		}
		if got != s {
			t.Fatalf("round trip mismatch: got %q want %q", got, s)
		}
	}
}

func TestStr16TooLong(t *testing.T) {
	b := NewBuffer()
	if err := b.WriteStr16(string(make([]byte, MaxStringLen+1))); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestShortReadOutOfRange(t *testing.T) {
	b := NewBufferFrom([]byte{0x01})
	if _, err := b.ReadU32(); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestReadStr16LengthExceedsRemaining(t *testing.T) {
	b := NewBuffer()
	b.WriteU16(10)
	b.WriteRaw([]byte{1, 2, 3})
	r := NewBufferFrom(b.Bytes())
	if _, err := r.ReadStr16(); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestBigEndianMode(t *testing.T) {
	b := NewBuffer()
	b.BigEndian = true
	b.WriteU32(0x01020304)
	if b.Bytes()[0] != 0x01 || b.Bytes()[3] != 0x04 {
		t.Fatalf("expected big-endian byte order, got % x", b.Bytes())
	}
}

func TestReadRawNoCopyAndUnget(t *testing.T) {
	b := NewBufferFrom([]byte{1, 2, 3, 4, 5})
	first := b.ReadRawNoCopy(3)
	if len(first) != 3 {
		t.Fatalf("expected 3 bytes, got %d", len(first))
	}
	if err := b.UngetRaw(1); err != nil {
		t.Fatalf("UngetRaw: %v", err)
	}
	if b.Remaining() != 3 {
		t.Fatalf("expected 3 remaining after unget, got %d", b.Remaining())
	}
}

func TestWritePreallocStartEnd(t *testing.T) {
	b := NewBuffer()
	b.WriteU8(0xFF)
	slice, off := b.WritePreallocStart(10)
	n := copy(slice, []byte{1, 2, 3})
	b.WritePreallocEnd(off, n)
	if len(b.Bytes()) != 4 {
		t.Fatalf("expected 4 bytes total, got %d", len(b.Bytes()))
	}
}
