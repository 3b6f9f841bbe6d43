package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/iorelay/internal/protocol/frame"
)

var (
	ErrInvalidNetwork  = errors.New("transport: invalid network")
	ErrInvalidMode     = errors.New("transport: invalid mode")
	ErrAddressRequired = errors.New("transport: address required")
)

const (
	NetworkTCP  = "tcp"
	NetworkUnix = "unix"
	NetworkUDP  = "udp"

	ModeListen = "listen"
	ModeDial   = "dial"
)

// BackoffConfig defines dial retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config describes the bridge link.
type Config struct {
	Network string
	Mode    string
	// Address is the listen/bind address, or the bridge address when dialing
	// a stream network.
	Address string
	// Peer is the bridge address for udp. Empty learns it from the first
	// datagram received.
	Peer string

	ConnectTimeout time.Duration
	// MaxConnectAttempts bounds dialing; 0 retries until ctx is done.
	MaxConnectAttempts int
	Backoff            BackoffConfig
	Limits             frame.Limits
	TLS                TLSConfig
}

func DefaultConfig() Config {
	return Config{
		Network:        NetworkTCP,
		Mode:           ModeListen,
		Address:        "127.0.0.1:8124",
		ConnectTimeout: 5 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Network = strings.ToLower(strings.TrimSpace(c.Network))
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Network == "" {
		c.Network = def.Network
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.Limits.MaxMessageBytes <= 0 {
		if c.Network == NetworkUDP {
			c.Limits = frame.DatagramLimits()
		} else {
			c.Limits = def.Limits
		}
	}
	return c
}

func (c Config) Validate() error {
	switch c.Network {
	case NetworkTCP, NetworkUnix, NetworkUDP:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNetwork, c.Network)
	}
	switch c.Mode {
	case ModeListen, ModeDial:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, c.Mode)
	}
	if strings.TrimSpace(c.Address) == "" {
		return ErrAddressRequired
	}
	if c.Network == NetworkUDP && c.Mode == ModeDial && strings.TrimSpace(c.Peer) == "" {
		return fmt.Errorf("%w: udp dial mode needs a peer", ErrAddressRequired)
	}
	if c.MaxConnectAttempts < 0 {
		return fmt.Errorf("transport: max connect attempts must be >= 0")
	}
	return c.validateTLS()
}

// Stream reports whether the link uses sentinel framing.
func (c Config) Stream() bool {
	return c.Network != NetworkUDP
}
