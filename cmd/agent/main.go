package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-agent/internal/logger"
	"trade-agent/internal/metrics"
	"trade-agent/internal/store"
	"trade-agent/internal/trace"
	"trade-agent/internal/tradelog"

	"github.com/joho/godotenv"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := store.LoadConfig(configPath())
	must(err)

	compressOldLogs(ctx)

	deps, err := buildDependencies(ctx, cfg)
	must(err)
	defer deps.Close(ctx)

	sched := buildSchedule(ctx, cfg, deps)
	defer sched.Close()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(cfg.Metrics.Addr); err != nil {
				logger.ErrorWithErr(ctx, "Metrics endpoint stopped", err, "addr", cfg.Metrics.Addr)
			}
		}()
		logger.Info(ctx, "Metrics endpoint started", "addr", cfg.Metrics.Addr)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	go sched.Run(ctx, time.Duration(cfg.Scheduler.TickSeconds)*time.Second)

	logger.Info(ctx, "Agent started",
		"mode", cfg.Mode,
		"account", cfg.Account,
		"universe", len(cfg.Universe),
		"storage", cfg.Storage.Driver,
	)

	<-sigc
	logger.Info(ctx, "Shutting down")
	cancel()

	if p, err := deps.summarizer.SummarizeToday(); err == nil && p != "" {
		logger.Info(ctx, "EOD CSV written on shutdown", "path", p)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = trace.Shutdown(shutdownCtx)
}

func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func configPath() string {
	if v := os.Getenv("TRADER_CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}

func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}
