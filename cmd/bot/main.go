package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ladder-trading-bot/internal/broker/sim"
	"ladder-trading-bot/internal/engine"
	"ladder-trading-bot/internal/interfaces"
	"ladder-trading-bot/internal/logger"
	"ladder-trading-bot/internal/metrics"
	"ladder-trading-bot/internal/store"
	itrace "ladder-trading-bot/internal/trace"
	"ladder-trading-bot/internal/tradelog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	if err := itrace.Init(); err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = itrace.Shutdown(shutCtx)
	}()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := store.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if len(cfg.Targets) == 0 {
		cfg.Targets = store.DefaultTargets()
	}
	logger.Info(ctx, "Configuration loaded",
		"path", cfgPath, "mode", cfg.Mode, "targets", len(cfg.Targets))

	compactLogs(ctx)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	brk, err := buildBroker(ctx, cfg)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, brk)
	err = eng.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info(ctx, "Shutdown requested; exiting")
		return nil
	}
	return err
}

func buildBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	switch cfg.Mode {
	case "PAPER":
		b := sim.New()
		symbols := make([]string, 0, len(cfg.Targets))
		for _, t := range cfg.Targets {
			symbols = append(symbols, t.Symbol)
		}
		startFeed(ctx, b, symbols)
		logger.Info(ctx, "Paper broker ready", "symbols", len(symbols))
		return b, nil
	case "LIVE":
		return nil, errors.New("no live broker adapter is configured; run in PAPER mode")
	default:
		return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

func compactLogs(ctx context.Context) {
	days := 0
	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			days = n
		}
	}
	if days <= 0 {
		return
	}
	if err := tradelog.CompressOlder(days); err != nil {
		logger.Warn(ctx, "Trade log compaction failed", "error", err)
	} else {
		logger.Info(ctx, "Trade log compaction done", "retention_days", days)
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info(ctx, "Metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "Metrics endpoint failed", "error", err)
	}
}
