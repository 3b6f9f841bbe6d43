package relay

import (
	"fmt"
	"sync"

	"github.com/danmuck/iorelay/internal/observability"
	"github.com/danmuck/iorelay/internal/protocol"
	"github.com/danmuck/iorelay/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Gateway writes outbound envelopes to the bridge. One envelope is one
// WriteMessage call, and calls never overlap.
type Gateway struct {
	relayID string
	conn    frame.Conn
	mu      sync.Mutex
}

func newGateway(relayID string, conn frame.Conn) *Gateway {
	return &Gateway{relayID: relayID, conn: conn}
}

// Send addresses data to one session. The id is not checked against the
// registry; the bridge drops envelopes for sessions it no longer has.
func (g *Gateway) Send(id protocol.SessionID, data string) error {
	return g.write(observability.KindUnicast, protocol.Unicast(id, data))
}

// Broadcast emits a single envelope that the bridge fans out to every client.
func (g *Gateway) Broadcast(data string) error {
	return g.write(observability.KindBroadcast, protocol.BroadcastAll(data))
}

func (g *Gateway) write(kind string, env protocol.Outbound) error {
	raw, err := protocol.EncodeOutbound(env)
	if err != nil {
		observability.RecordOutbound(g.relayID, kind, false)
		return err
	}

	g.mu.Lock()
	err = g.conn.WriteMessage(raw)
	g.mu.Unlock()

	if err != nil {
		observability.RecordOutbound(g.relayID, kind, false)
		log.Warn().
			Str("relay", g.relayID).
			Str("kind", kind).
			Str("session", env.Session.String()).
			Err(err).
			Msg("relay outbound write failed")
		return fmt.Errorf("%w: %w", protocol.ErrWriteFailure, err)
	}
	observability.RecordOutbound(g.relayID, kind, true)
	return nil
}
