package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/congo-pay/phonewallet/internal/app"
	"github.com/congo-pay/phonewallet/internal/config"
	"github.com/congo-pay/phonewallet/internal/infra"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
	"github.com/congo-pay/phonewallet/internal/routes"
	"github.com/congo-pay/phonewallet/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	deps := routes.Deps{Cfg: cfg, Logger: logger}
	var backends app.Backends

	if cfg.DatabaseURL != "" {
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		deps.DB, backends.DB = db, db
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		deps.Cache, backends.Cache = cache, cache
	}

	if cfg.NATSURL != "" {
		nc, err := infra.NewNATSConn(cfg.NATSURL, cfg.AppName+"-api")
		if err != nil {
			logger.Error("connect nats", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		deps.Events, backends.Events = nc, nc
	}

	if cfg.EthRPCURL != "" {
		eth, err := infra.NewEthClient(ctx, cfg.EthRPCURL, cfg.EthChainID)
		if err != nil {
			logger.Error("connect ethereum", "error", err)
			os.Exit(1)
		}
		defer eth.Close()
		backends.Ledger = ledger.NewEthereum(eth, cfg.EthChainID)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	services, err := app.New(cfg, backends, logger, m)
	if err != nil {
		logger.Error("build services", "error", err)
		os.Exit(1)
	}
	deps.Services, deps.Metrics, deps.Gatherer = services, m, registry

	srv := server.New(deps)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
