// Package config loads server configuration from an optional TOML file with
// environment-variable overrides, and validates it before anything starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultConfigFile is the config file looked up in the working directory
// when no explicit path is given.
const DefaultConfigFile = "config.toml"

// duration lets TOML carry durations as strings like "30s" or "15m".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Config is the whole server configuration.
type Config struct {
	Debug bool `toml:"debug"`

	Server struct {
		Host           string   `toml:"host"`
		Port           int      `toml:"port"`
		RequestTimeout duration `toml:"request_timeout"`
		CORSOrigin     string   `toml:"cors_origin"`
	} `toml:"server"`

	Auth struct {
		JWTSecret  string   `toml:"jwt_secret"`
		TokenTTL   duration `toml:"token_ttl"`
		BcryptCost int      `toml:"bcrypt_cost"`
	} `toml:"auth"`

	RateLimit struct {
		Window      duration `toml:"window"`
		MaxRequests int      `toml:"max_requests"`
	} `toml:"ratelimit"`

	WebSocket struct {
		MetricsPushInterval duration `toml:"metrics_push_interval"`
	} `toml:"websocket"`

	TLS struct {
		Enabled  bool   `toml:"enabled"`
		CertFile string `toml:"cert_file"`
		KeyFile  string `toml:"key_file"`
	} `toml:"tls"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	cfg := &Config{}
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8080
	cfg.Server.RequestTimeout = duration(30 * time.Second)
	cfg.Server.CORSOrigin = "*"
	cfg.Auth.TokenTTL = duration(time.Hour)
	cfg.Auth.BcryptCost = 10
	cfg.RateLimit.Window = duration(15 * time.Minute)
	cfg.RateLimit.MaxRequests = 100
	cfg.WebSocket.MetricsPushInterval = duration(30 * time.Second)
	return cfg
}

// LoadConfig loads configuration with the following precedence:
// defaults, then the TOML file (explicit path, or DefaultConfigFile if it
// exists), then environment variables.
func LoadConfig(configPath string) (*Config, error) {
	cfg := NewConfig()

	filePath := configPath
	if filePath == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			filePath = DefaultConfigFile
		}
	}
	if filePath != "" {
		if _, err := toml.DecodeFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("loading %s: %w", filePath, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment. The JWT secret is
// expected to arrive this way in anything but local development.
func (c *Config) applyEnv() error {
	if v := os.Getenv("MOBILE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOBILE_API_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("MOBILE_API_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("MOBILE_API_TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MOBILE_API_TOKEN_TTL: %w", err)
		}
		c.Auth.TokenTTL = duration(ttl)
	}
	if v := os.Getenv("MOBILE_API_CORS_ORIGIN"); v != "" {
		c.Server.CORSOrigin = v
	}
	if v := os.Getenv("MOBILE_API_RATE_LIMIT_WINDOW"); v != "" {
		w, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MOBILE_API_RATE_LIMIT_WINDOW: %w", err)
		}
		c.RateLimit.Window = duration(w)
	}
	if v := os.Getenv("MOBILE_API_RATE_LIMIT_MAX"); v != "" {
		max, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOBILE_API_RATE_LIMIT_MAX: %w", err)
		}
		c.RateLimit.MaxRequests = max
	}
	if v := os.Getenv("MOBILE_API_BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOBILE_API_BCRYPT_COST: %w", err)
		}
		c.Auth.BcryptCost = cost
	}
	return nil
}

// Validate rejects configurations the server must not start with.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("ratelimit max_requests must be positive")
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("tls enabled but cert_file or key_file missing")
	}
	return nil
}

// Typed accessors for duration fields.

func (c *Config) RequestTimeout() time.Duration { return time.Duration(c.Server.RequestTimeout) }
func (c *Config) TokenTTL() time.Duration       { return time.Duration(c.Auth.TokenTTL) }
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.Window)
}
func (c *Config) MetricsPushInterval() time.Duration {
	return time.Duration(c.WebSocket.MetricsPushInterval)
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
