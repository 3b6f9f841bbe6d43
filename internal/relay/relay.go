package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/iorelay/internal/dispatch"
	"github.com/danmuck/iorelay/internal/observability"
	"github.com/danmuck/iorelay/internal/protocol"
	"github.com/danmuck/iorelay/internal/protocol/frame"
	"github.com/danmuck/iorelay/internal/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrAlreadyRunning = errors.New("relay: already running")

// previewBytes bounds how much of a bad envelope is logged.
const previewBytes = 128

type Option func(*Relay)

func WithID(id string) Option {
	return func(r *Relay) {
		if id != "" {
			r.id = id
		}
	}
}

func WithDuplicatePolicy(p session.DuplicatePolicy) Option {
	return func(r *Relay) {
		if p != "" {
			r.policy = p
		}
	}
}

// Relay owns one bridge link: its session registry, its gateway, and the
// reader loop that feeds the dispatcher.
type Relay struct {
	id     string
	policy session.DuplicatePolicy

	conn       frame.Conn
	registry   *session.Registry
	gateway    *Gateway
	dispatcher *dispatch.Dispatcher

	started   atomic.Bool
	stopping  atomic.Bool
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func New(conn frame.Conn, h dispatch.Handler, opts ...Option) *Relay {
	r := &Relay{
		id:     uuid.NewString(),
		policy: session.DuplicateOverwrite,
		conn:   conn,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registry = session.NewRegistry(r.policy)
	r.gateway = newGateway(r.id, conn)
	r.dispatcher = dispatch.New(r.id, r.registry, h, r)
	return r
}

func (r *Relay) ID() string {
	return r.id
}

// Run reads and dispatches envelopes until the link ends. It returns nil when
// stopped through ctx or Close, and an error wrapping
// protocol.ErrTransportClosed when the bridge side goes away.
func (r *Relay) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(r.done)
	defer observability.ForgetRelay(r.id)

	stop := context.AfterFunc(ctx, func() {
		_ = r.Close()
	})
	defer stop()

	observability.SetLiveSessions(r.id, r.registry.Len())
	log.Info().Str("relay", r.id).Str("duplicate_policy", string(r.policy)).Msg("relay running")

	for {
		raw, err := r.conn.ReadMessage()
		if err != nil {
			if frame.IsRecoverable(err) {
				log.Warn().Str("relay", r.id).Err(err).Msg("relay skipped oversize frame")
				observability.RecordDropped(r.id, observability.DropOversize)
				continue
			}
			if r.stopping.Load() {
				log.Info().Str("relay", r.id).Int("sessions", r.registry.Len()).Msg("relay stopped")
				return nil
			}
			r.closeConn()
			log.Error().Str("relay", r.id).Err(err).Msg("relay bridge link lost")
			return fmt.Errorf("%w: %w", protocol.ErrTransportClosed, err)
		}

		env, err := protocol.DecodeInbound(raw)
		if err != nil {
			log.Warn().
				Str("relay", r.id).
				Err(err).
				Str("raw", preview(raw)).
				Msg("relay skipped malformed envelope")
			observability.RecordDropped(r.id, observability.DropMalformed)
			continue
		}
		r.dispatcher.Dispatch(env)
	}
}

func (r *Relay) Send(id protocol.SessionID, data string) error {
	return r.gateway.Send(id, data)
}

func (r *Relay) Broadcast(data string) error {
	return r.gateway.Broadcast(data)
}

// Sessions returns a snapshot of live sessions ordered by id.
func (r *Relay) Sessions() []*session.Session {
	return r.registry.All()
}

func (r *Relay) Session(id protocol.SessionID) (*session.Session, bool) {
	return r.registry.Lookup(id)
}

// Close stops the relay. A blocked Run returns nil once the pending read
// unblocks.
func (r *Relay) Close() error {
	r.stopping.Store(true)
	return r.closeConn()
}

// Done is closed when Run returns.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

func (r *Relay) closeConn() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.conn.Close()
	})
	return r.closeErr
}

func preview(raw []byte) string {
	if len(raw) <= previewBytes {
		return string(raw)
	}
	return string(raw[:previewBytes]) + "..."
}
