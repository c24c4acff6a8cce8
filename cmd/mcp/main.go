package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/construction-graphrag/internal/adapters/mcp"
	"github.com/kirillkom/construction-graphrag/internal/bootstrap"
	"github.com/kirillkom/construction-graphrag/internal/config"
	"github.com/kirillkom/construction-graphrag/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol.
	logger := logging.NewTextLogger(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.NewQueryApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.New(app.QueryUC, app.QueryUC, logger)
	if err := srv.ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
