// Package echo sends every message back to the session that sent it.
package echo

import (
	"github.com/danmuck/iorelay/internal/dispatch"
	"github.com/danmuck/iorelay/internal/session"
)

const Name = "echo"

type Handler struct {
	dispatch.HandlerFuncs
}

func New() *Handler {
	return &Handler{
		HandlerFuncs: dispatch.HandlerFuncs{
			Message: func(out dispatch.Outbound, s *session.Session, data string) error {
				return out.Send(s.ID, data)
			},
		},
	}
}
