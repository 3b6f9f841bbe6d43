package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/danmuck/iorelay/internal/session"
)

// envConfig holds IORELAY_* overrides. Unset or empty values leave the file
// value in place. Log settings are read by the logging package.
type envConfig struct {
	ID                 string        `env:"IORELAY_ID"`
	App                string        `env:"IORELAY_APP"`
	DuplicatePolicy    string        `env:"IORELAY_DUPLICATE_POLICY"`
	BridgeNetwork      string        `env:"IORELAY_BRIDGE_NETWORK"`
	BridgeMode         string        `env:"IORELAY_BRIDGE_MODE"`
	BridgeAddress      string        `env:"IORELAY_BRIDGE_ADDRESS"`
	BridgePeer         string        `env:"IORELAY_BRIDGE_PEER"`
	ConnectTimeout     time.Duration `env:"IORELAY_BRIDGE_CONNECT_TIMEOUT"`
	MaxConnectAttempts *int          `env:"IORELAY_BRIDGE_MAX_CONNECT_ATTEMPTS"`
	MaxMessageBytes    int           `env:"IORELAY_BRIDGE_MAX_MESSAGE_BYTES"`
	AdminAddr          *string       `env:"IORELAY_ADMIN_ADDR"`
	CorsOrigins        []string      `env:"IORELAY_ADMIN_CORS_ORIGINS" envSeparator:","`
	AdminToken         string        `env:"IORELAY_ADMIN_TOKEN"`
}

func overlayEnv(cfg *Config) error {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString(&cfg.ID, raw.ID)
	setString(&cfg.App, raw.App)
	if v := strings.TrimSpace(raw.DuplicatePolicy); v != "" {
		cfg.DuplicatePolicy = session.DuplicatePolicy(v)
	}
	setString(&cfg.Bridge.Network, raw.BridgeNetwork)
	setString(&cfg.Bridge.Mode, raw.BridgeMode)
	setString(&cfg.Bridge.Address, raw.BridgeAddress)
	setString(&cfg.Bridge.Peer, raw.BridgePeer)
	if raw.ConnectTimeout > 0 {
		cfg.Bridge.ConnectTimeout = raw.ConnectTimeout
	}
	if raw.MaxConnectAttempts != nil {
		cfg.Bridge.MaxConnectAttempts = *raw.MaxConnectAttempts
	}
	if raw.MaxMessageBytes > 0 {
		cfg.Bridge.Limits.MaxMessageBytes = raw.MaxMessageBytes
	}
	if raw.AdminAddr != nil {
		cfg.Admin.Addr = strings.TrimSpace(*raw.AdminAddr)
	}
	if len(raw.CorsOrigins) > 0 {
		cfg.Admin.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	setString(&cfg.Admin.Token, raw.AdminToken)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
