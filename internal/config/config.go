// Package config loads the marketplace configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full marketd configuration.
type Config struct {
	ListenAddr string       `yaml:"listen_addr"`
	Database   Database     `yaml:"database"`
	Redis      Redis        `yaml:"redis"`
	Auth       Auth         `yaml:"auth"`
	Chain      Chain        `yaml:"chain"`
	Audit      AuditConfig  `yaml:"audit"`
	RateLimit  RateLimit    `yaml:"rate_limit"`
	CORS       CORSSettings `yaml:"cors"`
}

// Database selects the listing/proceeds backend. An empty URL selects the
// in-memory store.
type Database struct {
	URL string `yaml:"url"`
}

// Redis configures the optional listing cache. An empty address disables it.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Auth configures bearer-token authentication.
type Auth struct {
	Secret string `yaml:"secret"`
}

// Chain configures the asset contract connection.
type Chain struct {
	Endpoint          string  `yaml:"endpoint"`
	Operator          string  `yaml:"operator"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// AuditConfig configures the stale-listing sweep. An empty schedule disables
// it.
type AuditConfig struct {
	Schedule string `yaml:"schedule"`
}

// RateLimit throttles API callers.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// CORSSettings lists the browser origins allowed to call the API.
type CORSSettings struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Redis:      Redis{TTL: 30 * time.Second},
		Audit:      AuditConfig{Schedule: "@every 5m"},
		RateLimit:  RateLimit{RequestsPerSecond: 20, Burst: 40},
	}
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path skips the file and uses defaults plus
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MARKET_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("MARKET_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("MARKET_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MARKET_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("MARKET_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("MARKET_CHAIN_ENDPOINT"); v != "" {
		c.Chain.Endpoint = v
	}
	if v := os.Getenv("MARKET_CHAIN_OPERATOR"); v != "" {
		c.Chain.Operator = v
	}
	if v := os.Getenv("MARKET_AUDIT_SCHEDULE"); v != "" {
		c.Audit.Schedule = v
	}
	if v := os.Getenv("MARKET_RATE_LIMIT_RPS"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			c.RateLimit.RequestsPerSecond = rps
		}
	}
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Chain.Endpoint == "" {
		return fmt.Errorf("chain.endpoint is required")
	}
	if c.Chain.Operator == "" {
		return fmt.Errorf("chain.operator is required")
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = int(c.RateLimit.RequestsPerSecond)
		if c.RateLimit.Burst <= 0 {
			c.RateLimit.Burst = 1
		}
	}
	return nil
}
