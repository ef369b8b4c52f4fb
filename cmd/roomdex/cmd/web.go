package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/roomdex/internal/config"
	"github.com/Aman-CERP/roomdex/internal/gateway"
)

func newWebCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the search API only",
		Long: `Serve the read-only search API without running the bot.

Next to a running 'roomdex run', this needs state.backend: sqlite and
search.backend: meilisearch. The bolt and bleve backends are owned by a
single process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWeb(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func runWeb(ctx context.Context, addr string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, cleanup, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

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

	srv := gateway.NewServer(cfg.Server.Addr,
		newRouter(cfg, newService(cfg, store, eng, logger), eng, logger), logger)
	logger.Info("web_started", slog.String("addr", cfg.Server.Addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return shutdownOnDone(gctx, srv, config.Duration(cfg.Server.ShutdownGrace, 5*time.Second))
	})
	return g.Wait()
}
