// Package config loads service configuration. Defaults are overridden
// by an optional YAML file, and environment variables win over both.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Logging   LogConfig       `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `envconfig:"HOST" yaml:"host"`
	Port string `envconfig:"PORT" yaml:"port"`
	// AllowOrigins lists CORS origins; empty allows all.
	AllowOrigins []string `envconfig:"CORS_ORIGINS" yaml:"allow_origins"`
}

// Addr joins host and port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

// BackendConfig holds wellness AI backend configuration.
type BackendConfig struct {
	BaseURL           string        `envconfig:"AI_BASE_URL" yaml:"base_url"`
	AuthToken         string        `envconfig:"AI_AUTH_TOKEN" yaml:"auth_token"`
	Timeout           time.Duration `envconfig:"AI_TIMEOUT" yaml:"timeout"`
	StreamTimeout     time.Duration `envconfig:"AI_STREAM_TIMEOUT" yaml:"stream_timeout"`
	MaxRetries        int           `envconfig:"AI_MAX_RETRIES" yaml:"max_retries"`
	RequestsPerSecond float64       `envconfig:"AI_RPS" yaml:"requests_per_second"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// QueueConfig holds request queue configuration.
type QueueConfig struct {
	// MaxPending caps waiting requests; 0 means unbounded.
	MaxPending int `envconfig:"QUEUE_MAX_PENDING" yaml:"max_pending"`
}

// RateLimitConfig holds inbound per-client rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8000/api",
			Timeout:       30 * time.Second,
			StreamTimeout: 2 * time.Minute,
			MaxRetries:    3,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
		Queue: QueueConfig{
			MaxPending: 128,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// COMPANION_CONFIG if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("COMPANION_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration, falling back to defaults on error.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}
