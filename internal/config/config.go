package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/iorelay/internal/logging"
	"github.com/danmuck/iorelay/internal/session"
	"github.com/danmuck/iorelay/internal/transport"
	"github.com/rs/zerolog"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the relayd daemon configuration.
type Config struct {
	// ID names the relay in logs and metrics; empty generates one.
	ID              string
	App             string
	DuplicatePolicy session.DuplicatePolicy
	Bridge          transport.Config
	Admin           AdminConfig
	Log             LogConfig
}

// AdminConfig controls the introspection HTTP server. Empty Addr disables it.
// A non-empty Token requires bearer auth on the session endpoints.
type AdminConfig struct {
	Addr        string
	CorsOrigins []string
	Token       string
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func Default() Config {
	bridge := transport.DefaultConfig()
	bridge.Address = "127.0.0.1:5000"
	return Config{
		App:             "chat",
		DuplicatePolicy: session.DuplicateOverwrite,
		Bridge:          bridge,
		Admin: AdminConfig{
			Addr:        "127.0.0.1:5080",
			CorsOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     string(logging.FormatConsole),
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

type fileConfig struct {
	ID              string        `toml:"id"`
	App             string        `toml:"app"`
	DuplicatePolicy string        `toml:"duplicate_policy"`
	Bridge          bridgeSection `toml:"bridge"`
	Admin           adminSection  `toml:"admin"`
	Log             logSection    `toml:"log"`
}

type bridgeSection struct {
	Network            string     `toml:"network"`
	Mode               string     `toml:"mode"`
	Address            string     `toml:"address"`
	Peer               string     `toml:"peer"`
	ConnectTimeout     string     `toml:"connect_timeout"`
	MaxConnectAttempts int        `toml:"max_connect_attempts"`
	MaxMessageBytes    int        `toml:"max_message_bytes"`
	TLS                tlsSection `toml:"tls"`
}

type tlsSection struct {
	Enabled            bool   `toml:"enabled"`
	Mutual             bool   `toml:"mutual"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type adminSection struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

type logSection struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Load reads path over the defaults, then applies IORELAY_* env overrides.
// An empty path uses defaults and env only.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := overlayEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Bridge = cfg.Bridge.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.DuplicatePolicy, _ = session.ParseDuplicatePolicy(string(cfg.DuplicatePolicy))
	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load relay config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown keys in %s: %v", ErrInvalidConfig, path, undecoded)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("app") {
		cfg.App = strings.TrimSpace(raw.App)
	}
	if meta.IsDefined("duplicate_policy") {
		cfg.DuplicatePolicy = session.DuplicatePolicy(strings.TrimSpace(raw.DuplicatePolicy))
	}

	b := raw.Bridge
	if meta.IsDefined("bridge", "network") {
		cfg.Bridge.Network = strings.TrimSpace(b.Network)
	}
	if meta.IsDefined("bridge", "mode") {
		cfg.Bridge.Mode = strings.TrimSpace(b.Mode)
	}
	if meta.IsDefined("bridge", "address") {
		cfg.Bridge.Address = strings.TrimSpace(b.Address)
	}
	if meta.IsDefined("bridge", "peer") {
		cfg.Bridge.Peer = strings.TrimSpace(b.Peer)
	}
	if meta.IsDefined("bridge", "connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(b.ConnectTimeout))
		if err != nil {
			return fmt.Errorf("parse bridge.connect_timeout: %w", err)
		}
		cfg.Bridge.ConnectTimeout = d
	}
	if meta.IsDefined("bridge", "max_connect_attempts") {
		cfg.Bridge.MaxConnectAttempts = b.MaxConnectAttempts
	}
	if meta.IsDefined("bridge", "max_message_bytes") {
		cfg.Bridge.Limits.MaxMessageBytes = b.MaxMessageBytes
	}

	overlayTLS(&cfg.Bridge.TLS, b.TLS, meta)

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CorsOrigins = normalizeList(raw.Admin.CorsOrigins)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}

	l := raw.Log
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(l.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.TrimSpace(l.Format)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(l.File)
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = l.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = l.MaxBackups
	}
	if meta.IsDefined("log", "max_age_days") {
		cfg.Log.MaxAgeDays = l.MaxAgeDays
	}
	if meta.IsDefined("log", "compress") {
		cfg.Log.Compress = l.Compress
	}
	return nil
}

func overlayTLS(dst *transport.TLSConfig, raw tlsSection, meta toml.MetaData) {
	if meta.IsDefined("bridge", "tls", "enabled") {
		dst.Enabled = raw.Enabled
	}
	if meta.IsDefined("bridge", "tls", "mutual") {
		dst.Mutual = raw.Mutual
	}
	if meta.IsDefined("bridge", "tls", "cert_file") {
		dst.CertFile = strings.TrimSpace(raw.CertFile)
	}
	if meta.IsDefined("bridge", "tls", "key_file") {
		dst.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("bridge", "tls", "ca_file") {
		dst.CAFile = strings.TrimSpace(raw.CAFile)
	}
	if meta.IsDefined("bridge", "tls", "server_name") {
		dst.ServerName = strings.TrimSpace(raw.ServerName)
	}
	if meta.IsDefined("bridge", "tls", "insecure_skip_verify") {
		dst.InsecureSkipVerify = raw.InsecureSkipVerify
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.App) == "" {
		return fmt.Errorf("%w: app is required", ErrInvalidConfig)
	}
	if _, err := session.ParseDuplicatePolicy(string(c.DuplicatePolicy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Bridge.WithDefaults().Validate(); err != nil {
		return fmt.Errorf("%w: bridge: %w", ErrInvalidConfig, err)
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok && strings.TrimSpace(c.Log.Level) != "" {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	if _, ok := logging.ParseFormat(c.Log.Format); !ok && strings.TrimSpace(c.Log.Format) != "" {
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Logging converts the [log] section for logging.Apply.
func (c Config) Logging() logging.Config {
	out := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		out.Level = lvl
	} else {
		out.Level = zerolog.InfoLevel
	}
	if f, ok := logging.ParseFormat(c.Log.Format); ok {
		out.Format = f
	}
	out.File = logging.FileConfig{
		Path:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
	return out
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
