package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/monitor"
	"github.com/HerbHall/switchyard/internal/plugin"
	"github.com/HerbHall/switchyard/internal/server"
	"github.com/HerbHall/switchyard/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("switchyard starting", zap.String("version", version.Short()))

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Create plugin registry
	registry := plugin.NewRegistry(logger)
	if err := registry.Register(monitor.New(metrics)); err != nil {
		logger.Fatal("failed to register plugin", zap.Error(err))
	}

	if err := registry.InitAll(cfg); err != nil {
		logger.Fatal("failed to initialize plugins", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := registry.StartAll(ctx); err != nil {
		logger.Fatal("failed to start plugins", zap.Error(err))
	}

	addr := net.JoinHostPort(cfg.GetString("server.host"), cfg.GetString("server.port"))
	srv := server.New(addr, registry, logger.Named("server"), server.Options{
		RateLimit: cfg.GetFloat64("server.rate_limit"),
		RateBurst: cfg.GetInt("server.rate_burst"),
		Gatherer:  metrics,
	})

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("switchyard ready", zap.String("addr", addr))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			logger.Info("received reload signal")
			registry.ReloadAll(ctx)
			continue
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		break
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	cancel()
	registry.StopAll()

	logger.Info("switchyard stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.GetBool("log.development") {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	zc.Level = level
	return zc.Build()
}
