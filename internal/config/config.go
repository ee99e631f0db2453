package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the fabricd server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// GatewayConfig bounds every remote controller call. The workflow engine has
// no timeout of its own; these deadlines are the only thing standing between
// a hung controller and a job stuck in running.
type GatewayConfig struct {
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value
// is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("FABRICD_PORT", 8080),
			Env:  envString("FABRICD_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Gateway: GatewayConfig{
			RequestTimeout: envDuration("GATEWAY_REQUEST_TIMEOUT", 30*time.Second),
			ProbeTimeout:   envDuration("GATEWAY_PROBE_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("FABRICD_RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("FABRICD_PORT must be in (0, 65535], got %d", c.Server.Port)
	}

	if c.Gateway.RequestTimeout <= 0 {
		return fmt.Errorf("GATEWAY_REQUEST_TIMEOUT must be positive, got %s", c.Gateway.RequestTimeout)
	}
	if c.Gateway.ProbeTimeout <= 0 {
		return fmt.Errorf("GATEWAY_PROBE_TIMEOUT must be positive, got %s", c.Gateway.ProbeTimeout)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
