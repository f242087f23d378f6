package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANALYSIS_API_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "k")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Server.MCPStdio)
	assert.Equal(t, "https://api.compresr.ai", cfg.Upstream.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.False(t, cfg.Upstream.RawResponse)
	assert.False(t, cfg.Upstream.CircuitBreaker)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "k")
	t.Setenv("ANALYSIS_BASE_URL", "http://localhost:9000")
	t.Setenv("ANALYSIS_TIMEOUT", "90s")
	t.Setenv("PORT", "9443")
	t.Setenv("TLS_CERT_FILE", "/etc/tls/cert.pem")
	t.Setenv("TLS_KEY_FILE", "/etc/tls/key.pem")
	t.Setenv("RAW_RESPONSE", "true")
	t.Setenv("MCP_STDIO", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "9443", cfg.Server.Port)
	assert.Equal(t, "/etc/tls/cert.pem", cfg.Server.TLSCertFile)
	assert.Equal(t, "/etc/tls/key.pem", cfg.Server.TLSKeyFile)
	assert.True(t, cfg.Upstream.RawResponse)
	assert.True(t, cfg.Server.MCPStdio)
}

func TestLoadClampsTimeout(t *testing.T) {
	t.Setenv("ANALYSIS_API_KEY", "k")
	t.Setenv("ANALYSIS_TIMEOUT", "10m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MaxUpstreamTimeout, cfg.Upstream.Timeout)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "warn"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "nonsense"}.SlogLevel())
}
