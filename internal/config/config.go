// Package config loads the story layer configuration from a YAML file with
// environment-variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strata-social/story_layer/internal/app/domain/quota"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig controls the backing relational store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // seconds
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// QuotaConfig is the tier-to-allowance table plus the credit cost of an
// over-quota post. Modeled as configuration so tests can exercise boundary
// tiers without environment coupling.
type QuotaConfig struct {
	Tiers       map[string]quota.TierPolicy `yaml:"tiers"`
	OverageCost int64                       `yaml:"overage_cost"`
}

// StoriesConfig controls story lifecycle timing.
type StoriesConfig struct {
	TTL               time.Duration `yaml:"ttl"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	RetentionSchedule string        `yaml:"retention_schedule"`
	RetentionWindow   time.Duration `yaml:"retention_window"`
}

// RateLimitConfig controls the per-actor request budget.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// AuthConfig locates the identity provider's token verification key.
type AuthConfig struct {
	JWTPublicKeyPath string `yaml:"jwt_public_key_path"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Quota     QuotaConfig     `yaml:"quota"`
	Stories   StoriesConfig   `yaml:"stories"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Quota: QuotaConfig{
			Tiers: map[string]quota.TierPolicy{
				"free":    {DailyAllowance: 1, AllowOverage: true},
				"premium": {DailyAllowance: 10, AllowOverage: true},
				"pro":     {DailyAllowance: quota.Unlimited},
			},
			OverageCost: 1,
		},
		Stories: StoriesConfig{
			TTL:               24 * time.Hour,
			SweepInterval:     time.Minute,
			RetentionSchedule: "0 4 * * *",
			RetentionWindow:   30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
	}
}

// Load reads the configuration file named by CONFIG_PATH (default
// config/config.yaml when present) over the defaults, then applies
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.Getenv("CONFIG_PATH") != "" {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Stories.TTL <= 0 {
		return fmt.Errorf("story ttl must be positive")
	}
	if c.Quota.OverageCost <= 0 {
		return fmt.Errorf("overage cost must be positive")
	}
	if len(c.Quota.Tiers) == 0 {
		return fmt.Errorf("at least one quota tier is required")
	}
	for name, tier := range c.Quota.Tiers {
		if tier.DailyAllowance < quota.Unlimited {
			return fmt.Errorf("tier %s: daily allowance %d invalid", name, tier.DailyAllowance)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("JWT_PUBLIC_KEY_PATH"); v != "" {
		cfg.Auth.JWTPublicKeyPath = v
	}
	if v := os.Getenv("STORY_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Stories.TTL = ttl
		}
	}
}
