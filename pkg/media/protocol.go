package media

import (
	"time"

	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/wire"
)

// WriteMediaList encodes every required asset as a {name, size, hash64}
// triple, mirroring ServerMedia::writeMediaList. The whole list always fits
// in one packet; unlike MediaRequest/MediaReceive it is not chunked.
func (m *Manager) WriteMediaList(b *wire.Buffer) error {
	for _, f := range m.RequiredList() {
		if err := b.WriteStr16(f.Name); err != nil {
			return err
		}
		b.WriteU32(uint32(f.FileSize))
		b.WriteU64(f.DataHash)
	}
	return nil
}

// ReadMediaRequest decodes a MediaRequest packet into the list of filenames
// requested, mirroring ServerMedia::readMediaRequest. Stops at the first
// empty name or when the buffer is exhausted.
func ReadMediaRequest(b *wire.Buffer) ([]string, error) {
	var names []string
	for b.Remaining() > 0 {
		name, err := b.ReadStr16()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		names = append(names, name)
	}
	return names, nil
}

// PendingRequest is one peer's outstanding MediaRequest queue, mirroring
// RemotePlayer::pending_media.
type PendingRequest struct {
	names []string
}

// Enqueue appends names requested by a ReadMediaRequest call.
func (p *PendingRequest) Enqueue(names []string) {
	p.names = append(p.names, names...)
}

// Empty reports whether every requested asset has been sent.
func (p *PendingRequest) Empty() bool { return len(p.names) == 0 }

// WriteMediaReceive drains as much of the pending queue as fits in one
// transport.MTU*10 record, mirroring ServerMedia::writeMediaData's
// `pkt.size() > CONNECTION_MTU * 10` spill check. Each entry it writes is
// removed from the queue; call repeatedly until Empty returns true.
func (m *Manager) WriteMediaReceive(p *PendingRequest, b *wire.Buffer, now time.Time) error {
	sent := 0
	for sent < len(p.names) {
		if len(b.Bytes()) > transport.MTU*10 {
			break
		}
		name := p.names[sent]
		sent++

		if err := b.WriteStr16(name); err != nil {
			return err
		}

		f, ok := m.Lookup(name, now)
		var data []byte
		if ok {
			data = f.Data
		}
		b.WriteU32(uint32(len(data)))
		b.WriteRaw(data)
	}
	p.names = p.names[sent:]
	return nil
}

// requestChunkLimit is the byte budget a single outgoing MediaRequest
// packet may grow to before the caller must flush and start a new one,
// mirroring spec.md §4.10's "spread across MTU·5 bytes" wording for the
// client-to-server direction.
const requestChunkLimit = transport.MTU * 5

// WriteMediaRequest appends as many of the still-missing names as fit
// within requestChunkLimit, returning the names not yet written so the
// caller can start a fresh packet for them.
func WriteMediaRequest(b *wire.Buffer, names []string) (remaining []string, err error) {
	for i, name := range names {
		if len(b.Bytes()) > requestChunkLimit {
			return names[i:], nil
		}
		if err := b.WriteStr16(name); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
