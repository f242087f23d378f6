package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/compresr-ai/semantic-gateway/internal/config"
	"github.com/compresr-ai/semantic-gateway/internal/gateway"
	"github.com/compresr-ai/semantic-gateway/internal/mcpserver"
	"github.com/compresr-ai/semantic-gateway/internal/server"
	"github.com/compresr-ai/semantic-gateway/internal/tools"
	"github.com/compresr-ai/semantic-gateway/internal/upstream"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// On stdio the protocol owns stdout, so logs must go to stderr.
	logOut := os.Stdout
	if cfg.Server.MCPStdio {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	client := upstream.New(cfg.Upstream, logger)
	adapter := gateway.New(client, cfg.Upstream.RawResponse, logger)

	registry, err := tools.NewRegistry(adapter)
	if err != nil {
		log.Fatalf("failed to build tool registry: %v", err)
	}

	if cfg.Server.MCPStdio {
		logger.Info("starting MCP stdio server",
			"service", config.ServiceName, "version", config.ServiceVersion)
		if err := mcpserver.ServeStdio(mcpserver.New(registry, logger)); err != nil {
			log.Fatalf("mcp server failed: %v", err)
		}
		return
	}

	srv := server.New(cfg.Server, adapter, registry, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
