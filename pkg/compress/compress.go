// Package compress implements the streaming DEFLATE codec used for EELVL
// I/O and media transfer, including the "barebone" mode that strips the
// 2-byte zlib header and 4-byte Adler-32 footer a raw DEFLATE stream would
// otherwise carry. Grounded on the teacher's pkg/protocol buffer style and
// original_source/src/core/compressor.cpp's chunking and trim logic.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"hash/adler32"
	"io"

	"github.com/klauspost/compress/flate"
)

// chunkSmall matches the reference implementation's 5000-byte input pull size.
const chunkSmall = 5000

var (
	ErrStreamEnded = errors.New("compress: stream already finalized")
)

// ZlibError reports a decode failure with the byte index where it occurred.
type ZlibError struct {
	Index int
	Err   error
}

func (e *ZlibError) Error() string {
	return fmt.Sprintf("compress: zlib error near index 0x%04x: %v", e.Index, e.Err)
}

func (e *ZlibError) Unwrap() error { return e.Err }

// zlibHeader is the header produced by zlib's best-compression deflate
// stream (CMF=0x78, FLG=0xDA), used to synthesize barebone input.
var zlibHeader = [2]byte{0x78, 0xDA}

// Compressor streams DEFLATE-compressed output to w as Write is called with
// raw input, mirroring Compressor::compress's chunked pull in the reference.
type Compressor struct {
	w        io.Writer
	fw       *flate.Writer
	Barebone bool

	firstChunk bool
	done       bool
	buf        bytes.Buffer
	written    int
}

// NewCompressor creates a compressor writing to w.
func NewCompressor(w io.Writer) (*Compressor, error) {
	c := &Compressor{w: w, firstChunk: true}
	fw, err := flate.NewWriter(&c.buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	c.fw = fw
	return c, nil
}

// Write feeds raw input through DEFLATE, chunked at chunkSmall bytes as in
// the reference, and flushes the resulting compressed bytes to w.
func (c *Compressor) Write(p []byte) (int, error) {
	if c.done {
		return 0, ErrStreamEnded
	}
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > chunkSmall {
			n = chunkSmall
		}
		if _, err := c.fw.Write(p[:n]); err != nil {
			return total, err
		}
		if err := c.flushChunk(false); err != nil {
			return total, err
		}
		p = p[n:]
		total += n
	}
	return total, nil
}

// Finish flushes any remaining DEFLATE state and the terminating chunk.
func (c *Compressor) Finish() error {
	if c.done {
		return nil
	}
	c.done = true
	if err := c.fw.Close(); err != nil {
		return err
	}
	return c.flushChunk(true)
}

func (c *Compressor) flushChunk(final bool) error {
	data := c.buf.Bytes()
	c.buf.Reset()
	if len(data) == 0 {
		return nil
	}

	if c.Barebone {
		if c.firstChunk {
			c.firstChunk = false
			if len(data) < 2 {
				return fmt.Errorf("compress: failed to strip zlib header")
			}
			data = data[2:]
		}
		if final {
			if len(data) < 4 {
				return fmt.Errorf("compress: failed to strip adler footer")
			}
			data = data[:len(data)-4]
		}
	}

	_, err := c.w.Write(data)
	c.written += len(data)
	return err
}

// Decompressor streams DEFLATE-decompressed output, synthesizing the zlib
// header around a barebone input stream so the standard library's flate
// reader can consume it transparently.
type Decompressor struct {
	Barebone bool

	r     io.Reader
	index int
}

// NewDecompressor creates a decompressor reading compressed bytes from r.
func NewDecompressor(r io.Reader) *Decompressor {
	return &Decompressor{r: r}
}

// Decompress fully decodes the stream into a byte slice.
func (d *Decompressor) Decompress() ([]byte, error) {
	var src io.Reader = d.r
	if d.Barebone {
		src = io.MultiReader(bytes.NewReader(zlibHeader[:]), d.r)
	}
	fr := flate.NewReader(src)
	defer fr.Close()

	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, &ZlibError{Index: d.index, Err: err}
	}

	if d.Barebone {
		// Barebone streams carry no Adler-32 footer to verify; the checksum
		// is reconstructed for API symmetry with the reference but not
		// checked against anything, since the footer was stripped on encode.
		_ = adler32.Checksum(out)
	}
	return out, nil
}
