// Package config provides configuration parsing and validation for udpblast.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/udpblast/internal/blast"
	"github.com/postalsys/udpblast/internal/logging"
)

// Config represents the complete udpblast configuration.
type Config struct {
	Destination DestinationConfig `yaml:"destination"`
	Session     SessionConfig     `yaml:"session"`
	DNS         DNSConfig         `yaml:"dns"`
	Input       InputConfig       `yaml:"input"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// DestinationConfig is where datagrams go.
type DestinationConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SessionConfig tunes a single blaster.
type SessionConfig struct {
	PacketSize      ByteSize `yaml:"packet_size"`
	TTL             int      `yaml:"ttl"`              // 0 = OS default
	BufferWatermark ByteSize `yaml:"buffer_watermark"` // bytes queued before Write blocks
	StrictSend      bool     `yaml:"strict_send"`      // treat send failures as fatal
	LocalAddress    string   `yaml:"local_address"`    // optional local bind IP
}

// DNSConfig defines resolver settings.
type DNSConfig struct {
	Servers  []string      `yaml:"servers"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// InputConfig controls how stdin or a file is fed into the blaster.
type InputConfig struct {
	RateLimit ByteSize `yaml:"rate_limit"` // bytes per second, 0 = unlimited
	ChunkSize ByteSize `yaml:"chunk_size"` // read size per Write call
}

// LogConfig defines logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig defines the HTTP server exposing /metrics and /healthz.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// ByteSize is a byte count that accepts plain integers or human readable
// sizes such as "16KiB" or "1MB" in YAML.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}

	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		*b = 0
		return nil
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*b = ByteSize(n)
		return nil
	}

	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", raw, err)
	}
	*b = ByteSize(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler. Values are written as plain integers.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return int64(b), nil
}

// String formats the size with IEC units.
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int64(b))
	}
	return humanize.IBytes(uint64(b))
}

// Default returns a Config with default values.
func Default() *Config {
	dns := blast.DefaultDNSConfig()

	return &Config{
		Destination: DestinationConfig{
			Host: blast.DefaultHost,
			Port: blast.DefaultPort,
		},
		Session: SessionConfig{
			PacketSize:      blast.DefaultPacketSize,
			TTL:             0,
			BufferWatermark: blast.DefaultBufferWatermark,
		},
		DNS: DNSConfig{
			Servers:  []string{},
			Timeout:  dns.Timeout,
			CacheTTL: dns.CacheTTL,
		},
		Input: InputConfig{
			RateLimit: 0,
			ChunkSize: 64 * 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// Handle default values: ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // Keep original if not found
	})
}

// Validate checks the configuration for errors. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Destination.Host) == "" {
		errs = append(errs, "destination.host is required")
	}
	if c.Destination.Port < 0 || c.Destination.Port > 65535 {
		errs = append(errs, fmt.Sprintf("destination.port must be between 0 and 65535, got %d", c.Destination.Port))
	}

	if c.Session.PacketSize < 0 || c.Session.PacketSize > 65507 {
		errs = append(errs, fmt.Sprintf("session.packet_size must be between 0 and 65507, got %d", c.Session.PacketSize))
	}
	if c.Session.TTL < 0 || c.Session.TTL > 255 {
		errs = append(errs, "session.ttl must be between 0 and 255")
	}
	if c.Session.BufferWatermark < 0 {
		errs = append(errs, "session.buffer_watermark must not be negative")
	}
	if c.Session.LocalAddress != "" && net.ParseIP(c.Session.LocalAddress) == nil {
		errs = append(errs, fmt.Sprintf("session.local_address: invalid IP: %s", c.Session.LocalAddress))
	}

	for i, server := range c.DNS.Servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			errs = append(errs, fmt.Sprintf("dns.servers[%d]: must be host:port: %s", i, server))
		}
	}
	if c.DNS.Timeout < 0 {
		errs = append(errs, "dns.timeout must not be negative")
	}
	if c.DNS.CacheTTL < 0 {
		errs = append(errs, "dns.cache_ttl must not be negative")
	}

	if c.Input.RateLimit < 0 {
		errs = append(errs, "input.rate_limit must not be negative")
	}
	if c.Input.ChunkSize < 1 {
		errs = append(errs, "input.chunk_size must be positive")
	}

	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// BlastDestination returns the configured destination.
func (c *Config) BlastDestination() blast.Destination {
	return blast.Destination{Host: c.Destination.Host, Port: c.Destination.Port}
}

// SetDestination overrides host and port from a CLI style destination
// ("1234", "host:1234", "[::1]:1234").
func (c *Config) SetDestination(s string) error {
	dst, err := blast.ParseDestination(s)
	if err != nil {
		return err
	}
	c.Destination.Host = dst.Host
	c.Destination.Port = dst.Port
	return nil
}

// BlastDNSConfig returns the resolver configuration.
func (c *Config) BlastDNSConfig() blast.DNSConfig {
	return blast.DNSConfig{
		Servers:  append([]string(nil), c.DNS.Servers...),
		Timeout:  c.DNS.Timeout,
		CacheTTL: c.DNS.CacheTTL,
	}
}

// ToOptions maps the session and DNS sections onto blast.Options. Logger,
// metrics and hooks are left for the caller.
func (c *Config) ToOptions() blast.Options {
	return blast.Options{
		PacketSize:      int(c.Session.PacketSize),
		TTL:             c.Session.TTL,
		BufferWatermark: int(c.Session.BufferWatermark),
		StrictSend:      c.Session.StrictSend,
		Resolver:        blast.NewDNSResolver(c.BlastDNSConfig()),
		Binder:          blast.UDPBinder{LocalAddress: c.Session.LocalAddress},
	}
}

// String returns the config as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
