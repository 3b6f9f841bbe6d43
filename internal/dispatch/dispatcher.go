package dispatch

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/danmuck/iorelay/internal/observability"
	"github.com/danmuck/iorelay/internal/protocol"
	"github.com/danmuck/iorelay/internal/session"
	"github.com/rs/zerolog/log"
)

var ErrCallbackPanic = errors.New("dispatch: callback panicked")

type Outcome int

const (
	Delivered Outcome = iota
	DroppedUnknownSession
	DroppedDuplicate
	CallbackFailed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case DroppedUnknownSession:
		return "dropped_unknown_session"
	case DroppedDuplicate:
		return "dropped_duplicate"
	case CallbackFailed:
		return "callback_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Dispatcher applies inbound envelopes to a registry and a handler. It is not
// safe for concurrent Dispatch calls; the relay reader is its only caller.
type Dispatcher struct {
	relayID  string
	registry *session.Registry
	handler  Handler
	out      Outbound
}

func New(relayID string, registry *session.Registry, h Handler, out Outbound) *Dispatcher {
	if h == nil {
		h = Nop()
	}
	return &Dispatcher{
		relayID:  relayID,
		registry: registry,
		handler:  h,
		out:      out,
	}
}

func (d *Dispatcher) Dispatch(env protocol.Inbound) Outcome {
	var outcome Outcome
	switch env.Command {
	case protocol.CommandConnect:
		outcome = d.connect(env)
	case protocol.CommandMessage:
		outcome = d.message(env)
	case protocol.CommandDisconnect:
		outcome = d.disconnect(env)
	default:
		// decoder rejects these; treat as unroutable
		log.Warn().Str("relay", d.relayID).Str("command", string(env.Command)).Msg("dispatch unknown command")
		outcome = DroppedUnknownSession
	}
	observability.RecordInbound(d.relayID, string(env.Command), outcome.String())
	return outcome
}

func (d *Dispatcher) connect(env protocol.Inbound) Outcome {
	s, replaced, err := d.registry.Create(env.Session, env.Address, env.Port)
	if err != nil {
		log.Warn().
			Str("relay", d.relayID).
			Str("session", env.Session.String()).
			Err(err).
			Msg("dispatch connect rejected")
		observability.RecordDropped(d.relayID, observability.DropDuplicate)
		return DroppedDuplicate
	}
	if replaced != nil {
		log.Warn().
			Str("relay", d.relayID).
			Str("session", env.Session.String()).
			Str("previous", replaced.String()).
			Msg("dispatch connect overwrote live session")
	}
	observability.SetLiveSessions(d.relayID, d.registry.Len())
	log.Debug().Str("relay", d.relayID).Str("session", s.ID.String()).Str("peer", s.String()).Msg("dispatch connect")
	return d.invoke(protocol.CommandConnect, s, func() error {
		return d.handler.OnConnect(d.out, s)
	})
}

func (d *Dispatcher) message(env protocol.Inbound) Outcome {
	s, ok := d.registry.Lookup(env.Session)
	if !ok {
		d.dropUnknown(env)
		return DroppedUnknownSession
	}
	data := env.Payload()
	return d.invoke(protocol.CommandMessage, s, func() error {
		return d.handler.OnMessage(d.out, s, data)
	})
}

func (d *Dispatcher) disconnect(env protocol.Inbound) Outcome {
	s, ok := d.registry.Remove(env.Session)
	if !ok {
		d.dropUnknown(env)
		return DroppedUnknownSession
	}
	observability.SetLiveSessions(d.relayID, d.registry.Len())
	log.Debug().Str("relay", d.relayID).Str("session", s.ID.String()).Msg("dispatch disconnect")
	return d.invoke(protocol.CommandDisconnect, s, func() error {
		return d.handler.OnDisconnect(d.out, s)
	})
}

func (d *Dispatcher) dropUnknown(env protocol.Inbound) {
	log.Debug().
		Str("relay", d.relayID).
		Str("command", string(env.Command)).
		Str("session", env.Session.String()).
		Err(protocol.ErrUnknownSession).
		Msg("dispatch dropped envelope")
	observability.RecordDropped(d.relayID, observability.DropUnknownSession)
}

func (d *Dispatcher) invoke(cmd protocol.Command, s *session.Session, fn func() error) Outcome {
	if stack, err := safeCall(fn); err != nil {
		event := log.Error().
			Str("relay", d.relayID).
			Str("command", string(cmd)).
			Str("session", s.ID.String()).
			Err(err)
		if stack != nil {
			event = event.Bytes("stack", stack)
		}
		event.Msg("dispatch callback failed")
		observability.RecordCallbackFailure(d.relayID, string(cmd))
		return CallbackFailed
	}
	return Delivered
}

// safeCall runs fn, converting a panic into ErrCallbackPanic plus the stack
// captured at the panic site.
func safeCall(fn func() error) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCallbackPanic, r)
			stack = debug.Stack()
		}
	}()
	return nil, fn()
}
