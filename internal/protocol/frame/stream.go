package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

const readChunkSize = 4096

// Stream frames envelopes on a byte stream with a trailing Sentinel.
type Stream struct {
	rwc    io.ReadWriteCloser
	limits Limits

	buf     []byte
	chunk   []byte
	discard bool
	skipped atomic.Uint64
}

func NewStream(rwc io.ReadWriteCloser, limits Limits) *Stream {
	return &Stream{
		rwc:    rwc,
		limits: limits.withDefaults(DefaultLimits()),
		chunk:  make([]byte, readChunkSize),
	}
}

// ReadMessage returns the next complete message, reading as many chunks as
// needed. Bytes after the sentinel stay buffered for the next call.
func (s *Stream) ReadMessage() ([]byte, error) {
	for {
		if msg, ok, err := s.next(); ok || err != nil {
			return msg, err
		}
		n, err := s.rwc.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
			continue
		}
		if err == nil {
			// zero bytes without error is treated as end of stream
			err = io.EOF
		}
		if len(s.buf) > 0 && !s.discard {
			log.Warn().Int("bytes", len(s.buf)).Msg("frame.Stream dropping partial message at close")
		}
		s.buf = nil
		return nil, fmt.Errorf("%w: %w", ErrClosed, err)
	}
}

// next extracts one message from the buffer. ok is false when more input is
// needed.
func (s *Stream) next() ([]byte, bool, error) {
	for {
		i := bytes.IndexByte(s.buf, Sentinel)
		if i < 0 {
			if s.discard {
				s.buf = s.buf[:0]
				return nil, false, nil
			}
			if len(s.buf) > s.limits.MaxMessageBytes {
				s.discard = true
				s.buf = s.buf[:0]
				return nil, false, fmt.Errorf("%w: over %d bytes", ErrMessageTooLarge, s.limits.MaxMessageBytes)
			}
			return nil, false, nil
		}
		if s.discard {
			s.discard = false
			s.consume(i + 1)
			continue
		}
		if i == 0 {
			s.skipped.Add(1)
			log.Warn().Msg("frame.Stream skipping empty message")
			s.consume(1)
			continue
		}
		if i > s.limits.MaxMessageBytes {
			s.consume(i + 1)
			return nil, false, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, i)
		}
		msg := make([]byte, i)
		copy(msg, s.buf[:i])
		s.consume(i + 1)
		return msg, true, nil
	}
}

func (s *Stream) consume(n int) {
	rest := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
}

// WriteMessage writes msg and its sentinel in one Write call.
func (s *Stream) WriteMessage(msg []byte) error {
	if len(msg) == 0 {
		return ErrEmptyMessage
	}
	if len(msg) > s.limits.MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(msg))
	}
	if bytes.IndexByte(msg, Sentinel) >= 0 {
		return ErrSentinelInPayload
	}
	out := make([]byte, len(msg)+1)
	copy(out, msg)
	out[len(msg)] = Sentinel
	if _, err := s.rwc.Write(out); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return err
	}
	return nil
}

// Skipped returns how many zero-length messages were dropped.
func (s *Stream) Skipped() uint64 {
	return s.skipped.Load()
}

func (s *Stream) Close() error {
	return s.rwc.Close()
}
