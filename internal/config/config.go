package config

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete picrate configuration
type Config struct {
	Identity   Identity   `yaml:"identity"`
	Server     Server     `yaml:"server"`
	Assets     Assets     `yaml:"assets"`
	Connection Connection `yaml:"connection"`
	Feeds      Feeds      `yaml:"feeds"`
	Gallery    Gallery    `yaml:"gallery"`
	Seen       Seen       `yaml:"seen"`
	Logging    Logging    `yaml:"logging"`
}

// Identity identifies the local user; all ratings and the persisted
// seen set are keyed by this name
type Identity struct {
	UserName string `yaml:"user_name"`
}

// Server locates the rating server's websocket endpoint
type Server struct {
	Scheme string `yaml:"scheme"` // ws or wss
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Path   string `yaml:"path"`
}

// Assets locates the HTTP origin serving the static images, resolved
// against the same host as the websocket endpoint
type Assets struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// Connection contains channel lifecycle tuning
type Connection struct {
	// ReconnectDelaySeconds is the single-shot delay before one
	// reconnect attempt after a close. No exponential backoff, no
	// attempt cap.
	ReconnectDelaySeconds   int `yaml:"reconnect_delay_seconds"`
	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_seconds"`
}

// Feeds contains feed reconciliation tuning
type Feeds struct {
	// OptimisticTTLMs is how long a just-submitted rating shadows
	// server-derived values before the override is discarded
	OptimisticTTLMs int `yaml:"optimistic_ttl_ms"`
}

// Gallery contains pagination tuning
type Gallery struct {
	PageSize int `yaml:"page_size"`
}

// Seen configures the durable seen-items store
type Seen struct {
	Driver     string `yaml:"driver"` // sqlite or redis
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// DefaultConfig returns a configuration populated with defaults
func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Scheme: "ws",
			Host:   "localhost",
			Port:   8765,
			Path:   "/",
		},
		Assets: Assets{
			Port: 8766,
			Path: "/pics",
		},
		Connection: Connection{
			ReconnectDelaySeconds:   3,
			HandshakeTimeoutSeconds: 10,
		},
		Feeds: Feeds{
			OptimisticTTLMs: 3000,
		},
		Gallery: Gallery{
			PageSize: 20,
		},
		Seen: Seen{
			Driver:     "sqlite",
			SQLitePath: "./picrate.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// ServerURL builds the websocket endpoint URL
func (c *Config) ServerURL() string {
	path := c.Server.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s://%s:%d%s", c.Server.Scheme, c.Server.Host, c.Server.Port, path)
}

// AssetURL builds the HTTP locator for one image filename
func (c *Config) AssetURL(filename string) string {
	return fmt.Sprintf("http://%s:%d%s/%s", c.Server.Host, c.Assets.Port, strings.TrimSuffix(c.Assets.Path, "/"), filename)
}

// validLogLevels defines allowed log levels
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines allowed log formats
var validLogFormats = map[string]bool{
	"text": true,
	"json": true,
}

// validSchemes defines allowed websocket schemes
var validSchemes = map[string]bool{
	"ws":  true,
	"wss": true,
}

// validSeenDrivers defines allowed seen-store drivers
var validSeenDrivers = map[string]bool{
	"sqlite": true,
	"redis":  true,
}

// Validate checks if a configuration is valid
func Validate(cfg *Config) error {
	if cfg.Identity.UserName == "" {
		return fmt.Errorf("identity.user_name is required")
	}

	if !validSchemes[cfg.Server.Scheme] {
		return fmt.Errorf("invalid server scheme: %s (must be one of: ws, wss)", cfg.Server.Scheme)
	}
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Assets.Port < 1 || cfg.Assets.Port > 65535 {
		return fmt.Errorf("assets.port must be between 1 and 65535")
	}

	if cfg.Connection.ReconnectDelaySeconds < 1 || cfg.Connection.ReconnectDelaySeconds > 300 {
		return fmt.Errorf("connection.reconnect_delay_seconds must be between 1 and 300")
	}
	if cfg.Connection.HandshakeTimeoutSeconds < 1 || cfg.Connection.HandshakeTimeoutSeconds > 120 {
		return fmt.Errorf("connection.handshake_timeout_seconds must be between 1 and 120")
	}

	if cfg.Feeds.OptimisticTTLMs < 100 || cfg.Feeds.OptimisticTTLMs > 60000 {
		return fmt.Errorf("feeds.optimistic_ttl_ms must be between 100 and 60000")
	}

	if cfg.Gallery.PageSize < 1 || cfg.Gallery.PageSize > 500 {
		return fmt.Errorf("gallery.page_size must be between 1 and 500")
	}

	if !validSeenDrivers[cfg.Seen.Driver] {
		return fmt.Errorf("invalid seen driver: %s (must be one of: sqlite, redis)", cfg.Seen.Driver)
	}
	if cfg.Seen.Driver == "sqlite" && cfg.Seen.SQLitePath == "" {
		return fmt.Errorf("seen.sqlite_path is required when seen.driver is sqlite")
	}
	if cfg.Seen.Driver == "redis" && cfg.Seen.RedisURL == "" {
		return fmt.Errorf("seen.redis_url is required when seen.driver is redis")
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", cfg.Logging.Level)
	}
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be one of: text, json)", cfg.Logging.Format)
	}

	return nil
}
