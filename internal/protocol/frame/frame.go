package frame

import "errors"

// Sentinel terminates every envelope on a stream link. The JSON codec never
// emits it unescaped.
const Sentinel byte = 0x00

// MaxDatagramBytes is the largest UDP payload. Envelopes over a datagram link
// are bounded by it; the stream link has no such bound beyond Limits.
const MaxDatagramBytes = 65507

var (
	ErrClosed            = errors.New("frame: link closed")
	ErrMessageTooLarge   = errors.New("frame: message too large")
	ErrEmptyMessage      = errors.New("frame: empty message")
	ErrSentinelInPayload = errors.New("frame: sentinel byte in payload")
	ErrNoPeer            = errors.New("frame: datagram peer unknown")
)

// Conn is a message-oriented view of the bridge link. ReadMessage is called
// from a single reader; WriteMessage callers serialize among themselves.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(msg []byte) error
	Close() error
}

// Limits constrains per-message memory use.
type Limits struct {
	MaxMessageBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxMessageBytes: 8 * 1024 * 1024}
}

func DatagramLimits() Limits {
	return Limits{MaxMessageBytes: MaxDatagramBytes}
}

func (l Limits) withDefaults(fallback Limits) Limits {
	if l.MaxMessageBytes <= 0 {
		return fallback
	}
	return l
}

// IsRecoverable reports whether a ReadMessage error only cost one message and
// the link can keep being read.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrMessageTooLarge)
}
