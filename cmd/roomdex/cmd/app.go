package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aman-CERP/roomdex/internal/config"
	"github.com/Aman-CERP/roomdex/internal/engine"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/gateway"
	"github.com/Aman-CERP/roomdex/internal/lock"
	"github.com/Aman-CERP/roomdex/internal/logging"
	"github.com/Aman-CERP/roomdex/internal/mapping"
	"github.com/Aman-CERP/roomdex/internal/matrix"
)

const (
	lockWait            = 2 * time.Second
	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// setupLogging installs the configured JSON logger as the slog default.
// --debug forces the debug level.
func setupLogging(cfg *config.Config, toStderr bool) (*slog.Logger, func(), error) {
	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	logger, cleanup, err := logging.Setup(logging.Config{
		Level:         level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: toStderr,
	})
	if err != nil {
		return nil, nil, rxerrors.ConfigError("failed to set up logging", err)
	}
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// lockState takes the single-writer lock on the state directory.
func lockState(ctx context.Context, cfg *config.Config) (*lock.FileLock, error) {
	lk := lock.New(cfg.State.Location)
	if err := lk.Acquire(ctx, lockWait); err != nil {
		return nil, err
	}
	return lk, nil
}

func openStore(cfg *config.Config) (mapping.Store, error) {
	store, err := mapping.Open(cfg.State.Backend, cfg.State.Location)
	if err != nil {
		return nil, rxerrors.New(rxerrors.ErrCodeStoreOpen, "failed to open mapping store", err).
			WithDetail("backend", cfg.State.Backend).
			WithDetail("location", cfg.State.Location)
	}
	return store, nil
}

// openEngine opens the configured engine behind a circuit breaker.
func openEngine(cfg *config.Config, logger *slog.Logger) (*engine.Guarded, error) {
	inner, err := engine.Open(engine.Options{
		Backend: cfg.Search.Backend,
		DataDir: cfg.Search.DataDir,
		URL:     cfg.Search.URL,
		Key:     cfg.Search.Key,
		Timeout: config.Duration(cfg.Search.Timeout, 10*time.Second),
		Logger:  logger,
	})
	if err != nil {
		return nil, rxerrors.EngineError("failed to open search engine", err).
			WithDetail("backend", cfg.Search.Backend)
	}
	breaker := rxerrors.NewCircuitBreaker("engine",
		rxerrors.WithMaxFailures(breakerMaxFailures),
		rxerrors.WithResetTimeout(breakerResetTimeout))
	return engine.NewGuarded(inner, breaker), nil
}

func newService(cfg *config.Config, store mapping.Store, eng engine.Engine, logger *slog.Logger) *gateway.Service {
	return gateway.NewService(gateway.ServiceConfig{
		Store:    store,
		Engine:   eng,
		PageSize: cfg.Search.PageSize,
		Logger:   logger,
	})
}

func newRouter(cfg *config.Config, svc *gateway.Service, eng *engine.Guarded, logger *slog.Logger) http.Handler {
	return gateway.NewRouter(gateway.RouterConfig{
		Service:        svc,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: config.Duration(cfg.Server.RequestTimeout, 30*time.Second),
		Health:         engineHealth(eng),
		Logger:         logger,
	})
}

// engineHealth reports the engine breaker state. An open breaker is degraded.
func engineHealth(eng *engine.Guarded) gateway.HealthFunc {
	return func(*http.Request) (map[string]string, error) {
		state := eng.Breaker().State()
		status := map[string]string{"engine": state.String()}
		if state == rxerrors.StateOpen {
			return status, errors.New("search engine circuit is open")
		}
		return status, nil
	}
}

func newMatrixClient(cfg *config.Config, logger *slog.Logger) (*matrix.Client, error) {
	return matrix.New(matrix.Config{
		HomeserverURL:   cfg.Matrix.HomeserverURL,
		Username:        cfg.Matrix.Username,
		DeviceName:      cfg.Matrix.DeviceName,
		SessionPath:     cfg.Matrix.SessionPath,
		MemberCacheSize: cfg.Ingest.MemberCacheSize,
		Logger:          logger,
	})
}

// shutdownOnDone stops srv once ctx is done, allowing grace for in-flight
// requests.
func shutdownOnDone(ctx context.Context, srv *gateway.Server, grace time.Duration) error {
	<-ctx.Done()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	return srv.Shutdown(sctx)
}
