package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
http:
  listen: ":9000"
auth:
  secret: "0123456789abcdef0123456789abcdef"
refresh:
  countdown: 4
notify:
  queue_prefix: "q:"
  types:
    p1: [sms]
    p3: [im]
  users:
    - id: 1
      username: alice
      email: alice@example.com
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "monapi.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Listen)
	assert.Equal(t, 4, cfg.Refresh.Countdown)
	assert.Equal(t, time.Second, cfg.Refresh.Step, "unset keys keep their default")
	assert.Equal(t, 200, cfg.Refresh.MaxConnections)
	assert.Equal(t, "q:", cfg.Notify.QueuePrefix)
	assert.Equal(t, 5, cfg.Notify.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Notify.BreakerCooldown)
	require.Len(t, cfg.Notify.Users, 1)
	assert.Equal(t, "alice@example.com", cfg.Notify.Users[0].Email)

	types, err := cfg.NotifyTypes()
	require.NoError(t, err)
	assert.Equal(t, map[int][]string{1: {"sms"}, 3: {"im"}}, types)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONAPI_LISTEN", ":7000")
	t.Setenv("MONAPI_REFRESH_STEP", "250ms")
	t.Setenv("MONAPI_POSTGRES_DSN", "postgres://localhost/monforge")

	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Listen)
	assert.Equal(t, 250*time.Millisecond, cfg.Refresh.Step)
	assert.Equal(t, "postgres://localhost/monforge", cfg.Postgres.DSN)
}

func TestLoad_Rejects(t *testing.T) {
	_, err := Load(writeFile(t, "auth:\n  secret: short\n"))
	assert.ErrorContains(t, err, "auth.secret")

	_, err = Load(writeFile(t, "auth:\n  disabled: true\nnotify:\n  types:\n    urgent: [sms]\n"))
	assert.ErrorContains(t, err, "bad priority key")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("MONAPI_AUTH_DISABLED", "true")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Auth.Disabled)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
}
