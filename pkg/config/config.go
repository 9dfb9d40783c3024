// Package config loads the YAML configuration for a Thing server.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use forms like "5s"
// or "33ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	HTTP        HTTPConfig        `yaml:"http"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Events      EventsConfig      `yaml:"events"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Discovery   DiscoveryConfig   `yaml:"discovery"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig configures the framed TCP listener.
type ServerConfig struct {
	// Address to listen on.
	Address string `yaml:"address"`

	// ID identifies this server in handshakes and discovery.
	ID string `yaml:"id"`

	// MaxMessageSize is the maximum envelope size in bytes.
	MaxMessageSize uint32 `yaml:"max_message_size"`

	// TLS holds optional certificate paths. Plain TCP when empty.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig points at PEM files for the optional TLS listener.
type TLSConfig struct {
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	ClientCAFile string `yaml:"client_ca_file"`
}

// Enabled reports whether TLS is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// HTTPConfig configures the HTTP gateway.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DispatchConfig configures the request dispatcher.
type DispatchConfig struct {
	// Timeout is the per-request deadline.
	Timeout Duration `yaml:"timeout"`

	// QueueSize bounds each Thing's pending write/action queue.
	QueueSize int `yaml:"queue_size"`
}

// EventsConfig configures the event publisher.
type EventsConfig struct {
	// MinInterval is the default event rate ceiling.
	MinInterval Duration `yaml:"min_interval"`

	// QueueCapacity bounds each subscriber's delivery queue.
	QueueCapacity int `yaml:"queue_capacity"`
}

// PersistenceConfig configures the property value store.
type PersistenceConfig struct {
	// StateFile is the JSON snapshot path. Empty disables persistence.
	StateFile string `yaml:"state_file"`
}

// DiscoveryConfig configures mDNS advertisement.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Instance is the advertised service instance name.
	// Defaults to the server ID.
	Instance string `yaml:"instance"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// TraceFile enables binary protocol capture to this path.
	TraceFile string `yaml:"trace_file"`
}

// SlogLevel parses the configured level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch c.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.Level)
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address: ":7440",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: ":8080",
		},
		Dispatch: DispatchConfig{
			Timeout:   Duration(30 * time.Second),
			QueueSize: 32,
		},
		Events: EventsConfig{
			MinInterval:   Duration(33 * time.Millisecond),
			QueueCapacity: 16,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty path
// returns the defaults unchanged. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if c.HTTP.Enabled && c.HTTP.Address == "" {
		return fmt.Errorf("http.address is required when http is enabled")
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls needs both cert_file and key_file")
	}
	if c.Dispatch.Timeout < 0 {
		return fmt.Errorf("dispatch.timeout must not be negative")
	}
	if c.Dispatch.QueueSize < 0 {
		return fmt.Errorf("dispatch.queue_size must not be negative")
	}
	if c.Events.QueueCapacity < 0 {
		return fmt.Errorf("events.queue_capacity must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}
