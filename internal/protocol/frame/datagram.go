package frame

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// Datagram carries one envelope per packet. No sentinel is used, so message
// size is bounded by the datagram limit rather than Limits alone.
type Datagram struct {
	pc     net.PacketConn
	limits Limits
	buf    []byte

	mu   sync.RWMutex
	peer net.Addr
}

// NewDatagram wraps pc. When peer is nil the first sender becomes the peer.
func NewDatagram(pc net.PacketConn, peer net.Addr, limits Limits) *Datagram {
	limits = limits.withDefaults(DatagramLimits())
	if limits.MaxMessageBytes > MaxDatagramBytes {
		limits.MaxMessageBytes = MaxDatagramBytes
	}
	return &Datagram{
		pc:     pc,
		limits: limits,
		buf:    make([]byte, 64*1024),
		peer:   peer,
	}
}

func (d *Datagram) ReadMessage() ([]byte, error) {
	for {
		n, addr, err := d.pc.ReadFrom(d.buf)
		if err != nil {
			// every read error ends the link
			return nil, fmt.Errorf("%w: %w", ErrClosed, err)
		}
		d.learnPeer(addr)
		if n == 0 {
			log.Warn().Str("from", addrString(addr)).Msg("frame.Datagram skipping empty datagram")
			continue
		}
		if n > d.limits.MaxMessageBytes {
			return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
		}
		msg := make([]byte, n)
		copy(msg, d.buf[:n])
		return msg, nil
	}
}

func (d *Datagram) WriteMessage(msg []byte) error {
	if len(msg) == 0 {
		return ErrEmptyMessage
	}
	if len(msg) > d.limits.MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes exceeds datagram limit %d", ErrMessageTooLarge, len(msg), d.limits.MaxMessageBytes)
	}
	peer := d.Peer()
	if peer == nil {
		return ErrNoPeer
	}
	if _, err := d.pc.WriteTo(msg, peer); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return err
	}
	return nil
}

// Peer returns the bridge address writes go to, or nil if not yet known.
func (d *Datagram) Peer() net.Addr {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.peer
}

func (d *Datagram) learnPeer(addr net.Addr) {
	if addr == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.peer == nil {
		d.peer = addr
		log.Info().Str("peer", addr.String()).Msg("frame.Datagram learned bridge peer")
	}
}

func (d *Datagram) Close() error {
	return d.pc.Close()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
