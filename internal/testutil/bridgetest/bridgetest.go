// Package bridgetest provides an in-memory bridge peer for relay tests.
package bridgetest

import (
	"net"
	"testing"
	"time"

	"github.com/danmuck/iorelay/internal/protocol"
	"github.com/danmuck/iorelay/internal/protocol/frame"
)

const DefaultWait = 2 * time.Second

// Bridge is the bridge end of a net.Pipe link. The other end is handed to the
// relay under test.
type Bridge struct {
	t      testing.TB
	stream *frame.Stream
	out    chan []byte
	closed chan struct{}
}

// New returns the fake bridge and the relay side of the link.
func New(t testing.TB) (*Bridge, frame.Conn) {
	t.Helper()
	bridgeEnd, relayEnd := net.Pipe()
	b := &Bridge{
		t:      t,
		stream: frame.NewStream(bridgeEnd, frame.DefaultLimits()),
		out:    make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
	go b.readLoop()
	t.Cleanup(func() { _ = b.Close() })
	return b, frame.NewStream(relayEnd, frame.DefaultLimits())
}

func (b *Bridge) readLoop() {
	defer close(b.closed)
	for {
		msg, err := b.stream.ReadMessage()
		if err != nil {
			if frame.IsRecoverable(err) {
				continue
			}
			return
		}
		b.out <- msg
	}
}

func (b *Bridge) Connect(id protocol.SessionID, address string, port int) {
	b.t.Helper()
	b.send(protocol.Inbound{Command: protocol.CommandConnect, Session: id, Address: address, Port: port})
}

func (b *Bridge) Message(id protocol.SessionID, data string) {
	b.t.Helper()
	b.send(protocol.Inbound{Command: protocol.CommandMessage, Session: id, Data: protocol.StringPtr(data)})
}

func (b *Bridge) Disconnect(id protocol.SessionID) {
	b.t.Helper()
	b.send(protocol.Inbound{Command: protocol.CommandDisconnect, Session: id})
}

// WriteRaw sends bytes as one framed message, valid envelope or not.
func (b *Bridge) WriteRaw(raw []byte) {
	b.t.Helper()
	if err := b.stream.WriteMessage(raw); err != nil {
		b.t.Fatalf("bridgetest: write raw: %v", err)
	}
}

func (b *Bridge) send(env protocol.Inbound) {
	b.t.Helper()
	raw, err := protocol.EncodeInbound(env)
	if err != nil {
		b.t.Fatalf("bridgetest: encode %s: %v", env.Command, err)
	}
	b.WriteRaw(raw)
}

// Expect waits for the next outbound envelope from the relay.
func (b *Bridge) Expect() protocol.Outbound {
	b.t.Helper()
	select {
	case raw := <-b.out:
		env, err := protocol.DecodeOutbound(raw)
		if err != nil {
			b.t.Fatalf("bridgetest: relay wrote a bad envelope %q: %v", raw, err)
		}
		return env
	case <-time.After(DefaultWait):
		b.t.Fatalf("bridgetest: no outbound envelope within %s", DefaultWait)
	}
	return protocol.Outbound{}
}

// ExpectNone fails if the relay writes anything within d.
func (b *Bridge) ExpectNone(d time.Duration) {
	b.t.Helper()
	select {
	case raw := <-b.out:
		b.t.Fatalf("bridgetest: unexpected outbound envelope %q", raw)
	case <-time.After(d):
	}
}

// Close ends the link from the bridge side, as a crashed bridge would.
func (b *Bridge) Close() error {
	return b.stream.Close()
}

// Closed is closed once the relay side of the link is gone.
func (b *Bridge) Closed() <-chan struct{} {
	return b.closed
}
