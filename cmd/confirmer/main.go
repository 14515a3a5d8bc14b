package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "confirmer",
		Usage: "Advance submitted wallet transactions toward confirmation",
		Description: `Polls the ledger for every open transaction record and moves it through
pending, confirmed or failed. The HTTP gateway never polls on its own.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			runCommand(),
			sweepCommand(),
			statusCommand(),
			unsentCommand(),
		},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "batch",
				Usage:   "Maximum records polled per sweep",
				EnvVars: []string{"CONFIRMER_BATCH"},
				Value:   100,
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Concurrent ledger polls per sweep",
				EnvVars: []string{"CONFIRMER_CONCURRENCY"},
				Value:   8,
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address while running (empty disables)",
				EnvVars: []string{"CONFIRMER_METRICS_ADDR"},
			},
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "Delay between sweeps",
				EnvVars: []string{"CONFIRMER_INTERVAL"},
				Value:   15 * time.Second,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
