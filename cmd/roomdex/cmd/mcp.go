package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomdex/internal/config"
	"github.com/Aman-CERP/roomdex/internal/logging"
	"github.com/Aman-CERP/roomdex/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve search to AI assistants over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing the
search_messages and list_rooms tools.

Stdout carries JSON-RPC only; logs go to the log file. Like 'roomdex web',
running next to the bot needs the sqlite and meilisearch backends.`,
		Example: `  # Register with an MCP client
  claude mcp add roomdex -- roomdex mcp --config /path/to/roomdex.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(level, cfg.Logging.File)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.State.Backend == config.StateBackendBolt {
		lk, err := lockState(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = lk.Unlock() }()
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	srv, err := mcp.NewServer(newService(cfg, store, eng, logger), logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, "stdio")
}
