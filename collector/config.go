package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the collector configuration.
type Config struct {
	// ServerURL is the monapi base url.
	ServerURL string `yaml:"server_url"`
	// Token is sent as a bearer token. Empty when monapi runs without auth.
	Token string `yaml:"token"`
	// NodeIDs are the service-tree nodes this host belongs to.
	NodeIDs []int64 `yaml:"node_ids"`
	// Endpoint names this host in logs. Defaults to the hostname.
	Endpoint string `yaml:"endpoint"`

	SyncInterval time.Duration `yaml:"sync_interval"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`
	Listen       string        `yaml:"listen"`
	LogLevel     string        `yaml:"log_level"`
}

// DefaultConfig returns the settings used for keys the file leaves out.
func DefaultConfig() *Config {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Config{
		ServerURL:    "http://localhost:8080",
		Endpoint:     hostname,
		SyncInterval: time.Minute,
		MaxBackoff:   30 * time.Second,
		Listen:       ":2058",
		LogLevel:     "info",
	}
}

// LoadConfig reads path over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("server_url is required")
	}
	if len(c.NodeIDs) == 0 {
		return errors.New("node_ids must name at least one node")
	}
	if c.SyncInterval <= 0 {
		return errors.New("sync_interval must be positive")
	}
	return nil
}
