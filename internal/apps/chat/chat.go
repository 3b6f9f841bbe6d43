// Package chat is a small chat protocol over relay sessions.
//
// Messages have the form COMMAND:VALUE:
//
//	setname:NAME       name the sending session
//	echo:TEXT          send TEXT back to the sender
//	broadcast:TEXT     send TEXT to every client
//	send:NAME:TEXT     send TEXT to every session named NAME
package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/iorelay/internal/dispatch"
	"github.com/danmuck/iorelay/internal/session"
	"github.com/rs/zerolog/log"
)

const (
	Name = "chat"

	// NameKey is the session attribute holding the display name.
	NameKey = "chat.name"
)

var ErrBadCommand = errors.New("chat: bad command")

type Handler struct{}

func New() *Handler {
	return &Handler{}
}

func (h *Handler) OnConnect(_ dispatch.Outbound, s *session.Session) error {
	log.Info().Str("session", s.ID.String()).Str("client", s.String()).Msg("chat client connected")
	return nil
}

func (h *Handler) OnMessage(out dispatch.Outbound, s *session.Session, data string) error {
	command, value, ok := strings.Cut(data, ":")
	if !ok {
		return fmt.Errorf("%w: %q has no ':'", ErrBadCommand, truncate(data))
	}
	log.Debug().Str("session", s.ID.String()).Str("command", command).Str("value", truncate(value)).Msg("chat message")

	switch command {
	case "setname":
		s.Set(NameKey, value)
		return nil
	case "echo":
		return out.Send(s.ID, value)
	case "broadcast":
		return out.Broadcast(value)
	case "send":
		name, text, ok := strings.Cut(value, ":")
		if !ok {
			return fmt.Errorf("%w: send needs NAME:TEXT", ErrBadCommand)
		}
		return sendToName(out, name, text)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrBadCommand, command)
	}
}

func (h *Handler) OnDisconnect(_ dispatch.Outbound, s *session.Session) error {
	log.Info().Str("session", s.ID.String()).Str("client", s.String()).Msg("chat client disconnected")
	return nil
}

// sendToName delivers text to every live session whose name matches.
// Unnamed sessions never match.
func sendToName(out dispatch.Outbound, name, text string) error {
	var errs []error
	for _, peer := range out.Sessions() {
		v, ok := peer.Get(NameKey)
		if !ok || v != name {
			continue
		}
		if err := out.Send(peer.ID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func truncate(s string) string {
	if len(s) <= 30 {
		return s
	}
	cut := 30
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
