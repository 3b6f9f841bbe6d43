package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/iorelay/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Open establishes the bridge link described by cfg.
func Open(ctx context.Context, cfg Config) (frame.Conn, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case cfg.Network == NetworkUDP:
		return openDatagram(ctx, cfg)
	case cfg.Mode == ModeDial:
		return dialStream(ctx, cfg)
	default:
		ln, err := Listen(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return ln.Accept(ctx)
	}
}

// Listener waits for exactly one bridge connection on a stream network.
type Listener struct {
	ln     net.Listener
	cfg    Config
	tlsCfg *tls.Config
}

func Listen(ctx context.Context, cfg Config) (*Listener, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Stream() || cfg.Mode != ModeListen {
		return nil, fmt.Errorf("%w: listener needs a stream network in listen mode", ErrInvalidMode)
	}
	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		c, err := serverTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		tlsCfg = c
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, cfg.Network, cfg.Address)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("network", cfg.Network).
		Str("addr", ln.Addr().String()).
		Bool("tls", cfg.TLS.Enabled).
		Msg("transport waiting for bridge")
	return &Listener{ln: ln, cfg: cfg, tlsCfg: tlsCfg}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept takes one connection and closes the listener. Cancelling ctx aborts
// the wait.
func (l *Listener) Accept(ctx context.Context) (frame.Conn, error) {
	defer l.ln.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = l.ln.Close()
	})
	defer stop()

	conn, err := l.ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if l.tlsCfg != nil {
		tconn := tls.Server(conn, l.tlsCfg)
		if err := handshake(ctx, tconn, l.cfg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("transport: bridge tls handshake: %w", err)
		}
		conn = tconn
	}
	log.Info().Str("bridge", conn.RemoteAddr().String()).Msg("transport bridge connected")
	return frame.NewStream(conn, l.cfg.Limits), nil
}

func (l *Listener) Close() error {
	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func dialStream(ctx context.Context, cfg Config) (frame.Conn, error) {
	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		c, err := clientTLSConfig(cfg.TLS, cfg.Address)
		if err != nil {
			return nil, err
		}
		tlsCfg = c
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		conn, err := dialOnce(ctx, cfg, tlsCfg)
		if err == nil {
			log.Info().Str("bridge", cfg.Address).Int("attempt", attempt).Msg("transport dialed bridge")
			return frame.NewStream(conn, cfg.Limits), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, fmt.Errorf("transport: dial %s after %d attempts: %w", cfg.Address, attempt, err)
		}
		delay := NextBackoffDelay(cfg.Backoff, attempt, rng)
		log.Warn().Str("bridge", cfg.Address).Int("attempt", attempt).Dur("retry_in", delay).Err(err).Msg("transport dial failed")
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func dialOnce(ctx context.Context, cfg Config, tlsCfg *tls.Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, cfg.Network, cfg.Address)
	if err != nil || tlsCfg == nil {
		return conn, err
	}
	tconn := tls.Client(conn, tlsCfg)
	if err := handshake(ctx, tconn, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tconn, nil
}

func openDatagram(ctx context.Context, cfg Config) (frame.Conn, error) {
	var peer net.Addr
	if cfg.Peer != "" {
		addr, err := net.ResolveUDPAddr(NetworkUDP, cfg.Peer)
		if err != nil {
			return nil, fmt.Errorf("transport: resolve udp peer: %w", err)
		}
		peer = addr
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, NetworkUDP, cfg.Address)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", pc.LocalAddr().String()).Str("peer", cfg.Peer).Msg("transport udp bound")
	return frame.NewDatagram(pc, peer, cfg.Limits), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
