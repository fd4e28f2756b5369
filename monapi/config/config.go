// Package config loads the monapi configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itskum47/monforge/monapi/notify"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Limits   LimitsConfig   `yaml:"limits"`
	Notify   NotifyConfig   `yaml:"notify"`
}

type HTTPConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type PostgresConfig struct {
	// DSN selects the Postgres store. Empty keeps everything in memory.
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	// Disabled turns off bearer-token checks, for local development.
	Disabled bool   `yaml:"disabled"`
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
}

type RefreshConfig struct {
	Countdown      int           `yaml:"countdown"`
	Step           time.Duration `yaml:"step"`
	MaxConnections int           `yaml:"max_connections"`
}

type LimitsConfig struct {
	WeightsPerSecond float64       `yaml:"weights_per_second"`
	WeightsBurst     int           `yaml:"weights_burst"`
	EventsPerSecond  float64       `yaml:"events_per_second"`
	EventsBurst      int           `yaml:"events_burst"`
	IdempotencyTTL   time.Duration `yaml:"idempotency_ttl"`
}

type NotifyConfig struct {
	QueuePrefix string `yaml:"queue_prefix"`
	// Types overrides the channels used per priority, keyed "p1".."p3".
	Types map[string][]string `yaml:"types"`
	Links notify.Links        `yaml:"links"`
	Users []notify.User       `yaml:"users"`
	Teams []notify.Team       `yaml:"teams"`

	// BreakerFailures consecutive push failures open the queue breaker for
	// BreakerCooldown.
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Listen:          ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{Issuer: "monforge"},
		Refresh: RefreshConfig{
			Countdown:      9,
			Step:           time.Second,
			MaxConnections: 200,
		},
		Limits: LimitsConfig{
			WeightsPerSecond: 20,
			WeightsBurst:     40,
			EventsPerSecond:  100,
			EventsBurst:      200,
			IdempotencyTTL:   time.Hour,
		},
		Notify: NotifyConfig{
			QueuePrefix:     notify.DefaultQueuePrefix,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	if !c.Auth.Disabled && len(c.Auth.Secret) < 32 {
		return fmt.Errorf("auth.secret must be at least 32 characters")
	}
	if c.Refresh.Countdown < 0 {
		return fmt.Errorf("refresh.countdown must not be negative")
	}
	if c.Refresh.Step <= 0 {
		return fmt.Errorf("refresh.step must be positive")
	}
	if _, err := c.NotifyTypes(); err != nil {
		return err
	}
	return nil
}

// NotifyTypes converts the "pN" keyed override map to priorities.
func (c *Config) NotifyTypes() (map[int][]string, error) {
	if len(c.Notify.Types) == 0 {
		return nil, nil
	}
	out := make(map[int][]string, len(c.Notify.Types))
	for key, types := range c.Notify.Types {
		var p int
		if _, err := fmt.Sscanf(key, "p%d", &p); err != nil || p < 1 || p > 3 {
			return nil, fmt.Errorf("notify.types: bad priority key %q", key)
		}
		out[p] = types
	}
	return out, nil
}
