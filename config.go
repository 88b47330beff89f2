package fleetws

import (
	"net/url"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Default values for optional configuration fields.
const (
	DefaultPath                 = "/api/v1/fleet/live"
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 1 * time.Second
	DefaultRecvBufferSize       = 32
)

// Config configures a Manager.
type Config struct {
	// Endpoint is the HTTP(S) base URL of the fleet API.
	Endpoint             string        `yaml:"endpoint"`
	Path                 string        `yaml:"path"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	// PingInterval enables client-side pings when positive.
	PingInterval          time.Duration `yaml:"ping_interval"`
	RecvBufferSize        int           `yaml:"recv_buffer_size"`
	TLSInsecureSkipVerify bool          `yaml:"tls_insecure_skip_verify"`
}

func DefaultConfig(endpoint string) Config {
	cfg := Config{Endpoint: endpoint}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML config file, expanding ${VAR} references, applies
// defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config file")
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config yaml")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.RecvBufferSize == 0 {
		c.RecvBufferSize = DefaultRecvBufferSize
	}
}

// Validate checks the config after defaults have been applied.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.Wrap(ErrInvalidConfig, "endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "endpoint: %s", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return errors.Wrapf(ErrInvalidConfig, "endpoint scheme %q must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.Wrap(ErrInvalidConfig, "endpoint has no host")
	}
	if c.ReconnectBaseDelay < 0 {
		return errors.Wrap(ErrInvalidConfig, "reconnect_base_delay must not be negative")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.Wrap(ErrInvalidConfig, "max_reconnect_attempts must not be negative")
	}
	if c.HandshakeTimeout < 0 || c.WriteTimeout < 0 || c.PingInterval < 0 {
		return errors.Wrap(ErrInvalidConfig, "timeouts must not be negative")
	}
	if c.RecvBufferSize < 0 {
		return errors.Wrap(ErrInvalidConfig, "recv_buffer_size must not be negative")
	}
	return nil
}

func (c Config) ReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   c.ReconnectBaseDelay,
		MaxAttempts: c.MaxReconnectAttempts,
	}
}
