package serverproto

import (
	"time"

	"go.uber.org/zap"

	"github.com/StoreStation/eeland/pkg/env"
	"github.com/StoreStation/eeland/pkg/transport"
	"github.com/StoreStation/eeland/pkg/wire"
)

// globalBanContext is the BanStore context key for a server-wide ban, as
// opposed to a ban scoped to one world's "affected, context" row.
const globalBanContext = ""

// send delivers data reliably on channel to one peer, logging (not
// returning) transport failures: a send failing because the peer just
// disconnected is not a dispatch error, matching spec.md §7's protocol
// error policy of "log, drop, keep connection" generalized to outbound
// sends racing a disconnect.
func (d *Dispatcher) send(peer transport.PeerID, channel int, data []byte) {
	if err := d.Transport.Send(peer, transport.Flags(channel), data); err != nil {
		d.log.Debug("send failed", zap.Uint32("peer", uint32(peer)), zap.Error(err))
	}
}

// handleQuack is the debug no-op action: it exists purely so a client
// can probe liveness without side effects.
func handleQuack(d *Dispatcher, p *env.Player, data []byte) error {
	return nil
}

// handleHello validates the client's negotiated version and requested
// nickname, per spec.md §4.7.1. A rejected Hello replies with Error and
// disconnects rather than leaving the peer to retry, since a duplicate
// name or incompatible version cannot be fixed by resending the same
// packet.
func handleHello(d *Dispatcher, p *env.Player, data []byte) error {
	b := wire.NewBufferFrom(data)
	protoVer, protoMin, nickname, err := readHelloPacket(b)
	if err != nil {
		return nil // malformed Hello: protocol error, drop
	}

	effective := protoVer
	if effective > ProtocolVersion {
		effective = ProtocolVersion
	}
	minRequired := protoMin
	if ProtocolVersionMin > minRequired {
		minRequired = ProtocolVersionMin
	}
	if effective < minRequired {
		d.send(p.Peer, transport.ChannelEvents, encodeError("incompatible protocol version"))
		d.Transport.Disconnect(p.Peer)
		return nil
	}
	if nickname == "" || d.Env.IsNameOnline(nickname) {
		d.send(p.Peer, transport.ChannelEvents, encodeError("Player is already online"))
		d.Transport.Disconnect(p.Peer)
		return nil
	}
	if d.Bans != nil {
		if ban, banned, err := d.Bans.GetActive(nickname, globalBanContext, time.Now()); err == nil && banned {
			d.send(p.Peer, transport.ChannelEvents, encodeError("banned: "+ban.Comment))
			d.Transport.Disconnect(p.Peer)
			return nil
		}
	}

	p.Name = nickname
	p.DataVersion = effective
	d.send(p.Peer, transport.ChannelEvents, encodeHello(uint16(effective), uint32(p.Peer)))
	if d.Config != nil {
		if motd, err := d.Config.Get("motd"); err == nil && motd != "" {
			d.systemMsg(p.Peer, motd)
		}
	}
	return nil
}
