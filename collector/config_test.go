package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "server_url: http://monapi:8080/\nnode_ids: [3, 4]\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://monapi:8080", cfg.ServerURL)
	assert.Equal(t, []int64{3, 4}, cfg.NodeIDs)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, ":2058", cfg.Listen)
	assert.NotEmpty(t, cfg.Endpoint)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server_url: http://monapi:8080
token: secret
node_ids: [1]
endpoint: web-01
sync_interval: 15s
listen: 127.0.0.1:9100
log_level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Token)
	assert.Equal(t, "web-01", cfg.Endpoint)
	assert.Equal(t, 15*time.Second, cfg.SyncInterval)
	assert.Equal(t, "127.0.0.1:9100", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, dir, "server_url: http://monapi\n"))
	assert.ErrorContains(t, err, "node_ids")

	_, err = LoadConfig(writeConfig(t, dir, "node_ids: [1]\nsync_interval: 0s\n"))
	assert.ErrorContains(t, err, "sync_interval")

	_, err = LoadConfig(writeConfig(t, dir, "node_ids: [1\n"))
	assert.Error(t, err)
}
