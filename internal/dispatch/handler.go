package dispatch

import (
	"github.com/danmuck/iorelay/internal/protocol"
	"github.com/danmuck/iorelay/internal/session"
)

// Outbound is what a callback may do back toward the bridge.
type Outbound interface {
	Send(id protocol.SessionID, data string) error
	Broadcast(data string) error
	Sessions() []*session.Session
}

// Handler receives session lifecycle events. The session passed to
// OnDisconnect is already detached from the registry.
type Handler interface {
	OnConnect(out Outbound, s *session.Session) error
	OnMessage(out Outbound, s *session.Session, data string) error
	OnDisconnect(out Outbound, s *session.Session) error
}

// HandlerFuncs adapts plain functions to Handler. Nil members are no-ops.
type HandlerFuncs struct {
	Connect    func(out Outbound, s *session.Session) error
	Message    func(out Outbound, s *session.Session, data string) error
	Disconnect func(out Outbound, s *session.Session) error
}

func (h HandlerFuncs) OnConnect(out Outbound, s *session.Session) error {
	if h.Connect == nil {
		return nil
	}
	return h.Connect(out, s)
}

func (h HandlerFuncs) OnMessage(out Outbound, s *session.Session, data string) error {
	if h.Message == nil {
		return nil
	}
	return h.Message(out, s, data)
}

func (h HandlerFuncs) OnDisconnect(out Outbound, s *session.Session) error {
	if h.Disconnect == nil {
		return nil
	}
	return h.Disconnect(out, s)
}

// Nop ignores every event.
func Nop() Handler {
	return HandlerFuncs{}
}
