package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/iorelay/internal/protocol/frame"
	"github.com/danmuck/iorelay/internal/testutil/testlog"
	"github.com/danmuck/iorelay/internal/testutil/tlstest"
)

func TestTLSValidation(t *testing.T) {
	testlog.Start(t)
	base := func(mode string, tlsCfg TLSConfig) Config {
		return Config{Network: NetworkTCP, Mode: mode, Address: "127.0.0.1:0", TLS: tlsCfg}.WithDefaults()
	}
	cases := []struct {
		name string
		cfg  Config
		want error
	}{
		{"mutual without tls", base(ModeListen, TLSConfig{Mutual: true}), ErrTLSRequired},
		{"listen without cert", base(ModeListen, TLSConfig{Enabled: true, KeyFile: "k"}), ErrTLSCertFileRequired},
		{"listen without key", base(ModeListen, TLSConfig{Enabled: true, CertFile: "c"}), ErrTLSKeyFileRequired},
		{"listen mutual without ca", base(ModeListen, TLSConfig{Enabled: true, Mutual: true, CertFile: "c", KeyFile: "k"}), ErrTLSCAFileRequired},
		{"dial without ca", base(ModeDial, TLSConfig{Enabled: true}), ErrTLSCAFileRequired},
		{"unix", Config{Network: NetworkUnix, Mode: ModeListen, Address: "/tmp/x.sock", TLS: TLSConfig{Enabled: true, CertFile: "c", KeyFile: "k"}}.WithDefaults(), ErrTLSUnsupported},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if err := base(ModeDial, TLSConfig{Enabled: true, InsecureSkipVerify: true}).Validate(); err != nil {
		t.Fatalf("insecure dial should validate: %v", err)
	}
}

func TestMutualTLSBridgeLink(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "relay-test-ca")
	relayCert := ca.Server(t, "relay")
	bridgeCert := ca.Client(t, "bridge")

	ctx := context.Background()
	ln, err := Listen(ctx, Config{
		Network: NetworkTCP,
		Address: "127.0.0.1:0",
		TLS: TLSConfig{
			Enabled:  true,
			Mutual:   true,
			CertFile: relayCert.CertFile,
			KeyFile:  relayCert.KeyFile,
			CAFile:   ca.CAFile,
		},
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	type result struct {
		conn frame.Conn
		err  error
	}
	accepted := make(chan result, 1)
	go func() {
		c, err := ln.Accept(ctx)
		accepted <- result{c, err}
	}()

	bridge, err := Open(ctx, Config{
		Network:            NetworkTCP,
		Mode:               ModeDial,
		Address:            ln.Addr().String(),
		MaxConnectAttempts: 1,
		TLS: TLSConfig{
			Enabled:  true,
			Mutual:   true,
			CertFile: bridgeCert.CertFile,
			KeyFile:  bridgeCert.KeyFile,
			CAFile:   ca.CAFile,
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer bridge.Close()

	res := <-accepted
	if res.err != nil {
		t.Fatalf("accept: %v", res.err)
	}
	defer res.conn.Close()

	if err := bridge.WriteMessage([]byte(`{"command":"connect","session":"1"}`)); err != nil {
		t.Fatalf("bridge write: %v", err)
	}
	msg, err := res.conn.ReadMessage()
	if err != nil || string(msg) != `{"command":"connect","session":"1"}` {
		t.Fatalf("relay read: %q err=%v", msg, err)
	}
}

func TestTLSRejectsUntrustedBridge(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "relay-test-ca")
	other := tlstest.NewAuthority(t, "other-ca")
	relayCert := ca.Server(t, "relay")
	strangerCert := other.Client(t, "stranger")

	ctx := context.Background()
	ln, err := Listen(ctx, Config{
		Network: NetworkTCP,
		Address: "127.0.0.1:0",
		TLS: TLSConfig{
			Enabled:  true,
			Mutual:   true,
			CertFile: relayCert.CertFile,
			KeyFile:  relayCert.KeyFile,
			CAFile:   ca.CAFile,
		},
	})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if c != nil {
			_ = c.Close()
		}
		acceptErr <- err
	}()

	conn, dialErr := Open(ctx, Config{
		Network:            NetworkTCP,
		Mode:               ModeDial,
		Address:            ln.Addr().String(),
		MaxConnectAttempts: 1,
		TLS: TLSConfig{
			Enabled:  true,
			Mutual:   true,
			CertFile: strangerCert.CertFile,
			KeyFile:  strangerCert.KeyFile,
			CAFile:   ca.CAFile,
		},
	})
	if conn != nil {
		_ = conn.Close()
	}
	if err := <-acceptErr; err == nil {
		t.Fatalf("relay accepted a bridge signed by an unknown ca (dial err=%v)", dialErr)
	}
}
