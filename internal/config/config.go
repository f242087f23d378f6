package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

const (
	ServiceName    = "semantic-gateway"
	ServiceVersion = "1.2.0"

	// MaxUpstreamTimeout caps the per-attempt timeout applied to each
	// individual upstream request. Values above the cap are clamped at
	// load.
	MaxUpstreamTimeout = 120 * time.Second
)

type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port        string
	TLSCertFile string
	TLSKeyFile  string
	// MCPStdio switches the process to serve the tool protocol over
	// stdin/stdout instead of starting the HTTP listener.
	MCPStdio bool
}

type UpstreamConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RawResponse makes semantic_compression return the full upstream
	// JSON instead of the extracted compressed text.
	RawResponse    bool
	CircuitBreaker bool
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ANALYSIS_BASE_URL", "https://api.compresr.ai")
	v.SetDefault("ANALYSIS_TIMEOUT", "60s")
	v.SetDefault("RAW_RESPONSE", false)
	v.SetDefault("CIRCUIT_BREAKER", false)
	v.SetDefault("MCP_STDIO", false)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("PORT"),
			TLSCertFile: v.GetString("TLS_CERT_FILE"),
			TLSKeyFile:  v.GetString("TLS_KEY_FILE"),
			MCPStdio:    v.GetBool("MCP_STDIO"),
		},
		Upstream: UpstreamConfig{
			BaseURL:        v.GetString("ANALYSIS_BASE_URL"),
			APIKey:         v.GetString("ANALYSIS_API_KEY"),
			Timeout:        v.GetDuration("ANALYSIS_TIMEOUT"),
			RawResponse:    v.GetBool("RAW_RESPONSE"),
			CircuitBreaker: v.GetBool("CIRCUIT_BREAKER"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if cfg.Upstream.APIKey == "" {
		return nil, fmt.Errorf("ANALYSIS_API_KEY is required")
	}
	if cfg.Upstream.Timeout <= 0 {
		cfg.Upstream.Timeout = 60 * time.Second
	}
	if cfg.Upstream.Timeout > MaxUpstreamTimeout {
		slog.Warn("clamping upstream timeout",
			"configured", cfg.Upstream.Timeout,
			"max", MaxUpstreamTimeout)
		cfg.Upstream.Timeout = MaxUpstreamTimeout
	}

	return cfg, nil
}

// SlogLevel parses the configured log level, defaulting to info on bad input.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
