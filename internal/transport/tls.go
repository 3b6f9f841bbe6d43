package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	ErrTLSUnsupported      = errors.New("transport: tls needs a tcp bridge link")
	ErrTLSRequired         = errors.New("transport: mutual tls requires tls enabled")
	ErrTLSCertFileRequired = errors.New("transport: tls cert file required")
	ErrTLSKeyFileRequired  = errors.New("transport: tls key file required")
	ErrTLSCAFileRequired   = errors.New("transport: tls ca file required")
)

// TLSConfig secures a tcp bridge link. When listening, CertFile/KeyFile are
// the relay's identity and Mutual demands a bridge certificate signed by
// CAFile. When dialing, CAFile verifies the bridge and Mutual presents
// CertFile/KeyFile.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

func (c Config) validateTLS() error {
	t := c.TLS
	if t.Mutual && !t.Enabled {
		return ErrTLSRequired
	}
	if !t.Enabled {
		return nil
	}
	if c.Network != NetworkTCP {
		return fmt.Errorf("%w: network %q", ErrTLSUnsupported, c.Network)
	}
	needIdentity := c.Mode == ModeListen || t.Mutual
	if needIdentity && strings.TrimSpace(t.CertFile) == "" {
		return ErrTLSCertFileRequired
	}
	if needIdentity && strings.TrimSpace(t.KeyFile) == "" {
		return ErrTLSKeyFileRequired
	}
	needCA := (c.Mode == ModeListen && t.Mutual) || (c.Mode == ModeDial && !t.InsecureSkipVerify)
	if needCA && strings.TrimSpace(t.CAFile) == "" {
		return ErrTLSCAFileRequired
	}
	return nil
}

func serverTLSConfig(t TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
	}
	if t.Mutual {
		pool, err := loadCAPool(t.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		cfg.ClientCAs = pool
	}
	return cfg, nil
}

func clientTLSConfig(t TLSConfig, address string) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(t.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	cfg.ServerName = serverName

	if caPath := strings.TrimSpace(t.CAFile); caPath != "" {
		pool, err := loadCAPool(caPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if t.Mutual {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if ok := pool.AppendCertsFromPEM(caPEM); !ok {
		return nil, fmt.Errorf("transport: parse tls ca bundle: %s", path)
	}
	return pool, nil
}

// handshake is bounded by the connect timeout.
func handshake(ctx context.Context, conn *tls.Conn, cfg Config) error {
	hctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	return conn.HandshakeContext(hctx)
}
