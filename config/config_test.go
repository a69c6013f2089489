package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "bubbleflow_flows", cfg.NATS.FlowBucket)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
server:
  port: 9000
  execute_rate_limit: 5
  execute_burst: 10
nats:
  url: nats://nats.internal:4222
  reconnect_wait: 5s
log:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5.0, cfg.Server.ExecuteRateLimit)
	assert.Equal(t, "nats://nats.internal:4222", cfg.NATS.URL)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unspecified fields take defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "bubbleflow_flows", cfg.NATS.FlowBucket)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{
  "server": {"port": 8081},
  "metrics": {"enabled": true, "port": 9091}
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9091, cfg.Metrics.Port)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfigFile(t, "config.toml", "port = 1")
	_, err = Load(path)
	assert.ErrorContains(t, err, "unsupported config extension")

	path = writeConfigFile(t, "broken.yaml", "server: [not a mapping")
	_, err = Load(path)
	assert.ErrorContains(t, err, "parse YAML config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "out of range"},
		{"metrics port collision", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = c.Server.Port
		}, "must differ"},
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }, "nats.url is required"},
		{"bad bucket name", func(c *Config) { c.NATS.FlowBucket = "has space" }, "not a valid bucket name"},
		{"negative rate limit", func(c *Config) { c.Server.ExecuteRateLimit = -1 }, "cannot be negative"},
		{"rate limit without burst", func(c *Config) { c.Server.ExecuteRateLimit = 5 }, "execute_burst"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "logfmt" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
