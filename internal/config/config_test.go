package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DENOISE_API_URL", "")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "file", cfg.History.Backend)
	assert.Equal(t, filepath.Join(DefaultDir(), "originals"), cfg.History.Originals)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Tracing.Enabled)
	assert.False(t, cfg.ClientTLS())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("DENOISE_API_URL", "")
	path := filepath.Join(t.TempDir(), "studio.yaml")
	content := `
api_url: https://denoise.example.com/
poll_interval: 250ms
history:
  backend: sqlite
  dsn: /tmp/history.db
log:
  level: debug
  format: json
tls:
  ca_file: /etc/ca.pem
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://denoise.example.com", cfg.APIURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "sqlite", cfg.StoreConfig().Type)
	assert.Equal(t, "/tmp/history.db", cfg.StoreConfig().DSN)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.ClientTLS())
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DENOISE_API_URL", "http://10.0.0.5:9000")
	t.Setenv("DENOISE_HISTORY_BACKEND", "memory")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.5:9000", cfg.APIURL)
	assert.Equal(t, "memory", cfg.History.Backend)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("DENOISE_API_URL", "")
	path := filepath.Join(t.TempDir(), "studio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval: 0s\n"), 0644))

	_, err := Load(viper.New(), path)
	assert.Error(t, err)
}

func TestTracingFor(t *testing.T) {
	cfg := &Config{Tracing: TracingConfig{Enabled: true, Endpoint: "collector:4318"}}
	tc := cfg.TracingFor("studio", "1.2.3")
	assert.Equal(t, "studio", tc.ServiceName)
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
	assert.Equal(t, "collector:4318", tc.OTLPEndpoint)
	assert.True(t, tc.Enabled)
}
