// Package config loads ZenQueue's server configuration from a YAML file,
// environment variables, and CLI flags, in that precedence order from
// lowest to highest.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a running ZenQueue server. Zero values are
// never used directly; Load always fills in Defaults first.
type Config struct {
	Interface       string        `yaml:"interface"`
	Port            int           `yaml:"port"`
	MaxConnections  int           `yaml:"max_connections"`
	LogLevel        string        `yaml:"log_level"`
	AcceptRate      float64       `yaml:"accept_rate"`
	AcceptBurst     int           `yaml:"accept_burst"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults matches the CLI surface's documented defaults: interface
// 0.0.0.0, native port 3000, max-connections 1024, log level INFO.
func Defaults() Config {
	return Config{
		Interface:       "0.0.0.0",
		Port:            3000,
		MaxConnections:  1024,
		LogLevel:        "INFO",
		AcceptRate:      0, // <= 0 disables the accept-rate limiter
		AcceptBurst:     1,
		ShutdownTimeout: 5 * time.Second,
	}
}

// DefaultHTTPPort is the HTTP adapter's default port.
const DefaultHTTPPort = 3080

// Load builds a Config starting from Defaults, layering a YAML file (if
// path is non-empty and exists; a missing file is not an error) and then
// environment variable overrides. CLI flags are applied by the caller
// afterward, since flag parsing belongs to cmd/*.
func Load(path string) (Config, error) {
	return LoadWithDefaults(path, Defaults())
}

// LoadWithDefaults is Load with a caller-supplied base Config instead of
// Defaults. zenqueue-httpd uses this to start from DefaultHTTPPort instead
// of the native server's default port, since the two binaries disagree on
// exactly one field.
func LoadWithDefaults(path string, cfg Config) (Config, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Optional file: fall through with defaults.
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ZENQUEUE_INTERFACE"); v != "" {
		cfg.Interface = v
	}
	if v := os.Getenv("ZENQUEUE_PORT"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("ZENQUEUE_MAX_CONNECTIONS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.MaxConnections = n
		}
	}
	if v := os.Getenv("ZENQUEUE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ZENQUEUE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// Validate rejects configurations that can never produce a working server.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", c.MaxConnections)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Addr renders the interface/port pair as a dial/listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Interface, c.Port)
}
