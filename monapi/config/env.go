package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv applies MONAPI_* environment overrides.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("MONAPI_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := os.Getenv("MONAPI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MONAPI_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("MONAPI_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("MONAPI_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MONAPI_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MONAPI_JWT_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("MONAPI_AUTH_DISABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Disabled = b
		}
	}
	if v := os.Getenv("MONAPI_REFRESH_COUNTDOWN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Refresh.Countdown = n
		}
	}
	if v := os.Getenv("MONAPI_REFRESH_STEP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Refresh.Step = d
		}
	}
	if v := os.Getenv("MONAPI_WS_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Refresh.MaxConnections = n
		}
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
