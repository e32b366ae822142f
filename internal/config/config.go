// Package config manages trackgw daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete trackgw configuration.
type Config struct {
	Admin   AdminConfig   `koanf:"admin"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Ports   []PortConfig  `koanf:"ports"`
}

// AdminConfig holds the admin HTTP server configuration (stats, health,
// live subscriber endpoint).
type AdminConfig struct {
	// Addr is the admin HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
	// Token authorizes live-feed subscribers on /subscribe. Empty means
	// subscribers attach without authenticating.
	Token string `koanf:"token"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// IngestConfig holds parameters shared by every device-facing port.
type IngestConfig struct {
	// IdleTimeout disconnects a device that sends nothing for this long.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// KeepAlive is the TCP keep-alive probe interval on device connections.
	KeepAlive time.Duration `koanf:"keep_alive"`

	// MaxConnsPerPort caps concurrent device connections on each port.
	MaxConnsPerPort int `koanf:"max_conns_per_port"`
}

// PortConfig describes one device-facing listening port.
type PortConfig struct {
	// Addr is the listen address. Empty means ":<port>".
	Addr string `koanf:"addr"`

	// Port is the port number, also stamped into emitted fixes.
	Port int `koanf:"port"`

	// Family selects the protocol handler: "jimi", "ruptela" or "bypass".
	Family string `koanf:"family"`

	// HemisphereWest forces western longitudes on Jimi ports whose
	// devices never set the hemisphere status bits.
	HemisphereWest bool `koanf:"hemisphere_west"`
}

// ListenAddr returns the address to bind, deriving it from Port when
// Addr is not set explicitly.
func (pc PortConfig) ListenAddr() string {
	if pc.Addr != "" {
		return pc.Addr
	}
	return fmt.Sprintf(":%d", pc.Port)
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
//
// The ingest defaults reflect cellular tracker behavior: devices report
// every 10-30 seconds when moving, so five quiet minutes means the link
// is gone and the slot should be reclaimed.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ingest: IngestConfig{
			IdleTimeout:     5 * time.Minute,
			KeepAlive:       30 * time.Second,
			MaxConnsPerPort: 100,
		},
		Ports: DefaultPorts(),
	}
}

// DefaultPorts returns the standard port layout: two Ruptela ports and
// one Jimi port.
func DefaultPorts() []PortConfig {
	return []PortConfig{
		{Port: 6000, Family: "ruptela"},
		{Port: 6001, Family: "ruptela"},
		{Port: 7000, Family: "jimi"},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for trackgw configuration.
// Variables are named TRACKGW_<section>_<key>, e.g., TRACKGW_ADMIN_ADDR.
const envPrefix = "TRACKGW_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (TRACKGW_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults; a file without a ports
// section gets DefaultPorts().
//
// Environment variable mapping:
//
//	TRACKGW_ADMIN_ADDR    -> admin.addr
//	TRACKGW_ADMIN_TOKEN   -> admin.token
//	TRACKGW_METRICS_ADDR  -> metrics.addr
//	TRACKGW_METRICS_PATH  -> metrics.path
//	TRACKGW_LOG_LEVEL     -> log.level
//	TRACKGW_LOG_FORMAT    -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	// TRACKGW_ADMIN_ADDR -> admin.addr (strip prefix, lowercase, _ -> .).
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Ports) == 0 {
		cfg.Ports = DefaultPorts()
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms TRACKGW_ADMIN_ADDR -> admin.addr.
// Strips the TRACKGW_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
// The ports list is not part of the layer: a file that declares ports
// replaces the defaults wholesale instead of merging entry by entry.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":                defaults.Admin.Addr,
		"admin.token":               defaults.Admin.Token,
		"metrics.addr":              defaults.Metrics.Addr,
		"metrics.path":              defaults.Metrics.Path,
		"log.level":                 defaults.Log.Level,
		"log.format":                defaults.Log.Format,
		"ingest.idle_timeout":       defaults.Ingest.IdleTimeout.String(),
		"ingest.keep_alive":         defaults.Ingest.KeepAlive.String(),
		"ingest.max_conns_per_port": defaults.Ingest.MaxConnsPerPort,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin HTTP listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrInvalidIdleTimeout indicates the ingest idle timeout is invalid.
	ErrInvalidIdleTimeout = errors.New("ingest.idle_timeout must be > 0")

	// ErrInvalidKeepAlive indicates the keep-alive interval is invalid.
	ErrInvalidKeepAlive = errors.New("ingest.keep_alive must be > 0")

	// ErrInvalidMaxConns indicates the per-port connection cap is invalid.
	ErrInvalidMaxConns = errors.New("ingest.max_conns_per_port must be >= 1")

	// ErrNoPorts indicates the configuration declares no listening ports.
	ErrNoPorts = errors.New("at least one port must be configured")

	// ErrInvalidPortNumber indicates a port number outside 1-65535.
	ErrInvalidPortNumber = errors.New("port must be between 1 and 65535")

	// ErrInvalidPortFamily indicates an unrecognized protocol family.
	ErrInvalidPortFamily = errors.New("port family must be jimi, ruptela or bypass")

	// ErrDuplicatePort indicates two entries declare the same port number.
	ErrDuplicatePort = errors.New("duplicate port")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Ingest.IdleTimeout <= 0 {
		return ErrInvalidIdleTimeout
	}

	if cfg.Ingest.KeepAlive <= 0 {
		return ErrInvalidKeepAlive
	}

	if cfg.Ingest.MaxConnsPerPort < 1 {
		return ErrInvalidMaxConns
	}

	if err := validatePorts(cfg.Ports); err != nil {
		return err
	}

	return nil
}

// ValidFamilies lists the recognized protocol family strings.
var ValidFamilies = map[string]bool{
	"jimi":    true,
	"ruptela": true,
	"bypass":  true,
}

// validatePorts checks each port entry for correctness.
func validatePorts(ports []PortConfig) error {
	if len(ports) == 0 {
		return ErrNoPorts
	}

	seen := make(map[int]struct{}, len(ports))

	for i, pc := range ports {
		if pc.Port < 1 || pc.Port > 65535 {
			return fmt.Errorf("ports[%d] port %d: %w", i, pc.Port, ErrInvalidPortNumber)
		}

		if !ValidFamilies[pc.Family] {
			return fmt.Errorf("ports[%d] family %q: %w", i, pc.Family, ErrInvalidPortFamily)
		}

		if _, dup := seen[pc.Port]; dup {
			return fmt.Errorf("ports[%d] port %d: %w", i, pc.Port, ErrDuplicatePort)
		}
		seen[pc.Port] = struct{}{}
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
