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

	"github.com/Aman-CERP/roomdex/internal/chat"
	"github.com/Aman-CERP/roomdex/internal/config"
	"github.com/Aman-CERP/roomdex/internal/document"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/gateway"
	"github.com/Aman-CERP/roomdex/internal/ingest"
	"github.com/Aman-CERP/roomdex/internal/watcher"
)

func newRunCmd() *cobra.Command {
	var noWeb, noWatch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Index rooms and serve search",
		Long: `Log in, bind the configured indices, then index every new message
while serving the search API.

The bot and the API share one process and hold the state directory lock.
Edits to the config file are picked up without a restart: new index
bindings are bootstrapped as soon as the file is saved.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd.Context(), !noWeb, !noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWeb, "no-web", false, "Do not serve the search API")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the config file on change")

	return cmd
}

func runRun(ctx context.Context, serveWeb, watchConfig bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateLogin(); err != nil {
		return rxerrors.New(rxerrors.ErrCodeConfigInvalid, "cannot log in", err).
			WithSuggestion("set matrix.homeserver_url and matrix.username in " + cfg.Path())
	}

	logger, cleanup, err := setupLogging(cfg, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lk, err := lockState(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Unlock() }()

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

	client, err := newMatrixClient(cfg, logger)
	if err != nil {
		return err
	}
	if err := client.Authenticate(ctx, cfg.Matrix.Password); err != nil {
		return err
	}

	boot := ingest.NewBootstrapper(ingest.BootstrapConfig{
		Directory: client,
		Store:     store,
		Engine:    eng,
		Retry:     rxerrors.DefaultRetryConfig(),
		Logger:    logger,
	})
	if _, err := boot.Apply(ctx, cfg.Matrix.Indices); err != nil {
		// Rooms that did bind are indexed; the rest are retried on the next reload.
		logger.Warn("bootstrap_incomplete", slog.String("error", err.Error()))
	}

	builder := document.NewBuilder(document.BuilderDeps{Identity: client, Members: client, Logger: logger})
	dispatcher := ingest.NewDispatcher(ingest.DispatcherConfig{
		Coordinator: ingest.NewCoordinator(ingest.CoordinatorConfig{
			Builder: builder,
			Store:   store,
			Engine:  eng,
			Logger:  logger,
		}),
		Lifecycle: ingest.NewLifecycle(ingest.LifecycleConfig{
			Store:  store,
			Joiner: client,
			Logger: logger,
		}),
		Members:      client,
		DrainTimeout: config.Duration(cfg.Ingest.DrainTimeout, ingest.DefaultDrainTimeout),
		Logger:       logger,
	})

	events := make(chan chat.Event, cfg.Ingest.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(events)
		return client.Sync(gctx, events)
	})
	g.Go(func() error {
		return dispatcher.Run(gctx, events)
	})

	if serveWeb {
		srv := gateway.NewServer(cfg.Server.Addr,
			newRouter(cfg, newService(cfg, store, eng, logger), eng, logger), logger)
		g.Go(srv.Start)
		g.Go(func() error {
			return shutdownOnDone(gctx, srv, config.Duration(cfg.Server.ShutdownGrace, 5*time.Second))
		})
	}

	if watchConfig {
		if _, err := os.Stat(cfg.Path()); err == nil {
			w := watcher.NewConfigWatcher(cfg.Path(), watcher.Options{
				Debounce: config.Duration(cfg.Ingest.ConfigDebounce, 500*time.Millisecond),
			}, logger)
			g.Go(func() error {
				return w.Run(gctx, reloadIndices(cfg.Path(), boot, logger))
			})
		}
	}

	err = g.Wait()
	s := dispatcher.Stats()
	logger.Info("roomdex_stopped",
		slog.Int64("received", s.Received),
		slog.Int64("indexed", s.Indexed),
		slog.Int64("failed", s.Failed))
	return err
}

// reloadIndices re-reads the config at path and binds its indices. Bindings
// already present are re-applied, which is idempotent.
func reloadIndices(path string, boot *ingest.Bootstrapper, logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		next, err := config.Load(path)
		if err != nil {
			return err
		}
		report, err := boot.Apply(ctx, next.Matrix.Indices)
		if report != nil {
			logger.Info("config_reloaded",
				slog.Int("bound", len(report.Bound)),
				slog.Int("failed", len(report.Failed)))
		}
		return err
	}
}
