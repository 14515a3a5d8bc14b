package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/congo-pay/phonewallet/internal/app"
	"github.com/congo-pay/phonewallet/internal/config"
	"github.com/congo-pay/phonewallet/internal/infra"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
	"github.com/congo-pay/phonewallet/internal/poller"
)

// session holds the connections a command opened; close releases them.
type session struct {
	cfg      config.Config
	logger   *slog.Logger
	services *app.Services
	closers  []func()
}

func (r *session) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func setup(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required: records are shared with the gateway")
	}
	if cfg.EthRPCURL == "" {
		return nil, fmt.Errorf("ETH_RPC_URL is required to poll the ledger")
	}

	rt := &session{cfg: cfg, logger: logging.New(cfg.LogLevel, cfg.LogFormat)}
	var backends app.Backends

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, db.Close)
	backends.DB = db

	eth, err := infra.NewEthClient(ctx, cfg.EthRPCURL, cfg.EthChainID)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closers = append(rt.closers, eth.Close)
	backends.Ledger = ledger.NewEthereum(eth, cfg.EthChainID)

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = cache.Close() })
		backends.Cache = cache
	}

	if cfg.NATSURL != "" {
		nc, err := infra.NewNATSConn(cfg.NATSURL, cfg.AppName+"-confirmer")
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = nc.Drain() })
		backends.Events = nc
	}

	rt.services, err = app.New(cfg, backends, rt.logger, metrics.New(nil))
	if err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func newPoller(c *cli.Context, rt *session) *poller.Poller {
	return poller.New(rt.services.Tracker, poller.Options{
		Interval:    c.Duration("interval"),
		Batch:       c.Int("batch"),
		Concurrency: c.Int("concurrency"),
	}, rt.logger)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Sweep open transactions until interrupted",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			if addr := c.String("metrics-addr"); addr != "" {
				srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						rt.logger.Error("metrics listener", slog.Any("error", err))
					}
				}()
				defer srv.Close()
			}

			rt.logger.Info("confirmer started",
				slog.Duration("interval", c.Duration("interval")),
				slog.Int("batch", c.Int("batch")),
				slog.Int("depth", rt.cfg.Confirmation.Depth),
			)
			err = newPoller(c, rt).Run(ctx)
			rt.logger.Info("confirmer stopped")
			return err
		},
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Poll one batch of open transactions and exit",
		Action: func(c *cli.Context) error {
			rt, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()

			stats, err := newPoller(c, rt).RunOnce(c.Context)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Printf("polled %d, confirmed %d, failed %d, errors %d\n",
				stats.Polled, stats.Confirmed, stats.Failed, stats.Errors)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Poll a single transaction and print its record",
		ArgsUsage: "<hash>",
		Action: func(c *cli.Context) error {
			hash := c.Args().First()
			if hash == "" {
				return cli.Exit("transaction hash is required", 1)
			}
			rt, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()

			record, err := rt.services.Tracker.Poll(c.Context, hash)
			if err != nil {
				return fmt.Errorf("poll %s: %w", hash, err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}
}

func unsentCommand() *cli.Command {
	return &cli.Command{
		Name:  "unsent",
		Usage: "List submitted transfers the ledger never acknowledged",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "age", Value: 10 * time.Minute, Usage: "only records submitted at least this long ago"},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c.Context)
			if err != nil {
				return err
			}
			defer rt.close()

			records, err := rt.services.Tracker.Unsent(c.Context, c.Duration("age"), c.Int("batch"))
			if err != nil {
				return fmt.Errorf("list unsent: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}
}
