package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full application configuration. Values are resolved in three
// layers: compiled defaults, then environment variables, then an optional
// JSON file. The file wins so deployments can pin a known-good config.
type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Database  DatabaseConfig  `json:"database"`
	WebSocket WebSocketConfig `json:"websocket"`
	Auth      AuthConfig      `json:"auth"`
}

// HTTPConfig configures the listener shared by the REST API and websockets.
type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DatabaseConfig configures the sqlite store.
type DatabaseConfig struct {
	Path            string        `json:"path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// WebSocketConfig configures the session room transport.
type WebSocketConfig struct {
	ReadTimeout       time.Duration `json:"read_timeout"`
	PingInterval      time.Duration `json:"ping_interval"`
	MessageBufferSize int           `json:"message_buffer_size"`
	MaxMessageSize    int64         `json:"max_message_size"`
	CheckOrigin       bool          `json:"check_origin"`
}

// AuthConfig configures token issuing and verification.
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// Addr returns the host:port listen address.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DefaultConfig returns the compiled-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:            "./liveclass.db",
			MaxConnections:  10,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		WebSocket: WebSocketConfig{
			ReadTimeout:       60 * time.Second,
			PingInterval:      30 * time.Second,
			MessageBufferSize: 100,
			MaxMessageSize:    64 * 1024,
			CheckOrigin:       false,
		},
		Auth: AuthConfig{
			JWTSecret: "",
			TokenTTL:  12 * time.Hour,
		},
	}
}

// Validate rejects configurations that cannot work at runtime.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max_connections must be at least 1, got %d", c.Database.MaxConnections)
	}
	if c.WebSocket.MessageBufferSize < 1 {
		return fmt.Errorf("websocket message_buffer_size must be at least 1, got %d", c.WebSocket.MessageBufferSize)
	}
	if c.WebSocket.PingInterval > 0 && c.WebSocket.ReadTimeout > 0 &&
		c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return fmt.Errorf("websocket ping_interval (%s) must be shorter than read_timeout (%s)",
			c.WebSocket.PingInterval, c.WebSocket.ReadTimeout)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	return nil
}

// LoadFromEnv overlays LIVECLASS_* environment variables onto the config.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("LIVECLASS_HOST"); v != "" {
		c.HTTP.Host = v
	}
	if v := os.Getenv("LIVECLASS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTP.Port = port
		}
	}
	if v := os.Getenv("LIVECLASS_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("LIVECLASS_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LIVECLASS_DB_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Database.MaxConnections = n
		}
	}
	if v := os.Getenv("LIVECLASS_WS_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebSocket.ReadTimeout = d
		}
	}
	if v := os.Getenv("LIVECLASS_WS_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebSocket.PingInterval = d
		}
	}
	if v := os.Getenv("LIVECLASS_WS_CHECK_ORIGIN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.WebSocket.CheckOrigin = b
		}
	}
	if v := os.Getenv("LIVECLASS_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("LIVECLASS_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Auth.TokenTTL = d
		}
	}
}

// fileConfig mirrors Config but takes durations as strings ("30s", "5m") so
// config files stay human-editable.
type fileConfig struct {
	HTTP struct {
		Host            string `json:"host"`
		Port            *int   `json:"port"`
		ReadTimeout     string `json:"read_timeout"`
		WriteTimeout    string `json:"write_timeout"`
		ShutdownTimeout string `json:"shutdown_timeout"`
	} `json:"http"`
	Database struct {
		Path            string `json:"path"`
		MaxConnections  *int   `json:"max_connections"`
		ConnMaxLifetime string `json:"conn_max_lifetime"`
		ConnMaxIdleTime string `json:"conn_max_idle_time"`
	} `json:"database"`
	WebSocket struct {
		ReadTimeout       string `json:"read_timeout"`
		PingInterval      string `json:"ping_interval"`
		MessageBufferSize *int   `json:"message_buffer_size"`
		MaxMessageSize    *int64 `json:"max_message_size"`
		CheckOrigin       *bool  `json:"check_origin"`
	} `json:"websocket"`
	Auth struct {
		JWTSecret string `json:"jwt_secret"`
		TokenTTL  string `json:"token_ttl"`
	} `json:"auth"`
}

// LoadFromFile overlays a JSON config file onto the config. Missing fields
// keep their current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.HTTP.Host != "" {
		c.HTTP.Host = fc.HTTP.Host
	}
	if fc.HTTP.Port != nil {
		c.HTTP.Port = *fc.HTTP.Port
	}
	overlayDuration(&c.HTTP.ReadTimeout, fc.HTTP.ReadTimeout)
	overlayDuration(&c.HTTP.WriteTimeout, fc.HTTP.WriteTimeout)
	overlayDuration(&c.HTTP.ShutdownTimeout, fc.HTTP.ShutdownTimeout)

	if fc.Database.Path != "" {
		c.Database.Path = fc.Database.Path
	}
	if fc.Database.MaxConnections != nil {
		c.Database.MaxConnections = *fc.Database.MaxConnections
	}
	overlayDuration(&c.Database.ConnMaxLifetime, fc.Database.ConnMaxLifetime)
	overlayDuration(&c.Database.ConnMaxIdleTime, fc.Database.ConnMaxIdleTime)

	overlayDuration(&c.WebSocket.ReadTimeout, fc.WebSocket.ReadTimeout)
	overlayDuration(&c.WebSocket.PingInterval, fc.WebSocket.PingInterval)
	if fc.WebSocket.MessageBufferSize != nil {
		c.WebSocket.MessageBufferSize = *fc.WebSocket.MessageBufferSize
	}
	if fc.WebSocket.MaxMessageSize != nil {
		c.WebSocket.MaxMessageSize = *fc.WebSocket.MaxMessageSize
	}
	if fc.WebSocket.CheckOrigin != nil {
		c.WebSocket.CheckOrigin = *fc.WebSocket.CheckOrigin
	}

	if fc.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = fc.Auth.JWTSecret
	}
	overlayDuration(&c.Auth.TokenTTL, fc.Auth.TokenTTL)

	return nil
}

func overlayDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// Load resolves the effective configuration: defaults, then environment,
// then the JSON file at path (when non-empty), then validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
