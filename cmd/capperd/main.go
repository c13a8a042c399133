// capperd is the capper engine daemon. It analyzes the current slate on an
// interval for every configured capper and publishes the picks.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/phenomenon0/capper-engine/pkg/config"
	"github.com/phenomenon0/capper-engine/pkg/logger"
)

var (
	configPath = flag.String("config", "capper.toml", "Path to the TOML config file")
	slatePath  = flag.String("slate", "", "Slate JSON file (overrides service.slate)")
	once       = flag.Bool("once", false, "Run a single batch and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if *slatePath != "" {
		cfg.Service.Slate = *slatePath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	lg, err := logger.WithLevel(cfg.Service.Name, cfg.Service.Env, cfg.Service.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer lg.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := newDaemon(ctx, cfg, *configPath, lg)
	if err != nil {
		lg.Fatal("failed to initialize daemon", zap.Error(err))
	}
	defer d.Close()

	if *once {
		if err := d.cycle(ctx); err != nil {
			lg.Error("batch failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	go d.hub.Run(ctx)

	if err := config.Watch(ctx, *configPath, func() {
		lg.Info("config changed, reloading cappers", zap.String("path", *configPath))
		d.registry.Invalidate()
	}, func(err error) {
		lg.Warn("config watcher error", zap.Error(err))
	}); err != nil {
		lg.Warn("config hot reload disabled", zap.Error(err))
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      d.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		lg.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("HTTP server error", zap.Error(err))
			cancel()
		}
	}()

	if err := d.runner.Start(ctx); err != nil {
		lg.Fatal("failed to start batch loop", zap.Error(err))
	}
	lg.Info("capperd running",
		zap.String("interval", cfg.Service.Interval),
		zap.Int("budget", cfg.Service.Budget),
		zap.String("slate", cfg.Service.Slate),
	)

	<-ctx.Done()
	lg.Info("shutting down")

	d.runner.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("HTTP shutdown error", zap.Error(err))
	}
}
