package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"isovault/config"
	"isovault/core"
	"isovault/observability/logging"
	"isovault/observability/metrics"
	telemetry "isovault/observability/otel"
	"isovault/services/isovaultd/server"
	"isovault/storage"
)

func main() {
	var cfgPath string
	var flushEvery time.Duration
	flag.StringVar(&cfgPath, "config", "./isovault.toml", "path to isovaultd configuration")
	flag.DurationVar(&flushEvery, "flush-interval", time.Minute, "how often vault registries are persisted")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup("isovaultd", cfg.LogEnv)

	if err := run(cfg, logger, flushEvery); err != nil {
		logger.Error("isovaultd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, flushEvery time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "isovaultd",
		Environment: cfg.LogEnv,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "registry"))
	if err != nil {
		return fmt.Errorf("open registry db: %w", err)
	}
	defer db.Close()

	sink := core.NewEventSink(logger, 0)
	protocol, err := core.New(cfg, core.Options{
		Logger:       logger,
		Emitter:      sink,
		Metrics:      metrics.Isolation(),
		DB:           db,
		SnapshotPath: cfg.SnapshotPath(),
	})
	if err != nil {
		return fmt.Errorf("wire protocol: %w", err)
	}
	restored, err := protocol.Restore()
	if err != nil {
		return err
	}
	logger.Info("protocol ready", "restored_vaults", restored, "data_dir", cfg.DataDir)

	srv := server.New(protocol, sink, logger)
	if flushEvery > 0 {
		go flushLoop(ctx, srv, logger, flushEvery)
	}

	serveErr := srv.ListenAndServe(ctx, cfg.ListenAddress)
	if err := srv.Do(func(p *core.Protocol) error { return p.Flush() }); err != nil {
		logger.Warn("final registry flush failed", "error", err)
	}
	return serveErr
}

func flushLoop(ctx context.Context, srv *server.Server, logger *slog.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := srv.Do(func(p *core.Protocol) error { return p.Flush() }); err != nil {
				logger.Warn("registry flush failed", "error", err)
			}
		}
	}
}
