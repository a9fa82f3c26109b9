// Command courierd runs the courier delivery engine with its admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"

	"github.com/xraph/courier"
	"github.com/xraph/courier/config"
	"github.com/xraph/courier/extension"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "", "Path to environment files")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "courierd: load config: %v\n", err)
		os.Exit(1)
	}

	zl, err := newZapLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "courierd: init logger: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync() //nolint:errcheck // stderr sync errors are not actionable

	logger := slog.New(zapslog.NewHandler(zl.Core(), zapslog.WithCaller(true)))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("courierd exited", "error", err)
		zl.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func newZapLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "store connected", "driver", cfg.Store.Driver)

	extCfg := extension.DefaultConfig()
	extCfg.Config = cfg.Delivery.Engine(courier.DefaultConfig())
	extCfg.BasePath = cfg.Server.BasePath

	ext := extension.New(
		extension.WithStore(s),
		extension.WithConfig(extCfg),
		extension.WithLogger(logger),
		extension.WithCourierOption(courier.WithTracing()),
	)
	if err := ext.Init(ctx); err != nil {
		_ = s.Close()
		return err
	}
	if err := ext.Start(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ext.Health(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/", ext.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "admin api listening", "addr", srv.Addr, "base_path", ext.Prefix())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), extCfg.ShutdownTimeout)
	defer cancel()

	return errors.Join(
		serveErr,
		srv.Shutdown(shutdownCtx),
		ext.Stop(shutdownCtx),
	)
}
