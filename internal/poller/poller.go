package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/phonewallet/internal/confirmation"
	"github.com/congo-pay/phonewallet/internal/logging"
)

// Tracker is the part of the confirmation tracker the poller drives.
type Tracker interface {
	Pending(ctx context.Context, limit int) ([]confirmation.Record, error)
	Poll(ctx context.Context, hash string) (confirmation.Record, error)
}

// Options tunes a Poller.
type Options struct {
	Interval    time.Duration
	Batch       int
	Concurrency int
}

// Stats summarises one sweep.
type Stats struct {
	Polled    int
	Confirmed int
	Failed    int
	Errors    int
}

// Poller periodically advances open transactions.
type Poller struct {
	tracker     Tracker
	interval    time.Duration
	batch       int
	concurrency int
	logger      *slog.Logger
}

// New creates a poller.
func New(tracker Tracker, opts Options, logger *slog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Second
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Poller{
		tracker:     tracker,
		interval:    opts.Interval,
		batch:       opts.Batch,
		concurrency: opts.Concurrency,
		logger:      logging.Component(logger, "poller"),
	}
}

// Run sweeps immediately and then once per interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		stats, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Warn("sweep failed", slog.Any("error", err))
		} else if stats.Polled > 0 {
			p.logger.Info("sweep finished",
				slog.Int("polled", stats.Polled),
				slog.Int("confirmed", stats.Confirmed),
				slog.Int("failed", stats.Failed),
				slog.Int("errors", stats.Errors),
			)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce polls one batch of open transactions. A failed poll is logged and
// counted; it does not stop the rest of the batch.
func (p *Poller) RunOnce(ctx context.Context) (Stats, error) {
	records, err := p.tracker.Pending(ctx, p.batch)
	if err != nil {
		return Stats{}, err
	}

	var polled, confirmed, failed, errs atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, r := range records {
		hash := r.Hash
		g.Go(func() error {
			next, err := p.tracker.Poll(gctx, hash)
			polled.Add(1)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				errs.Add(1)
				p.logger.Warn("poll failed", slog.String("hash", hash), slog.Any("error", err))
				return nil
			}
			switch next.State {
			case confirmation.StateConfirmed:
				confirmed.Add(1)
			case confirmation.StateFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	return Stats{
		Polled:    int(polled.Load()),
		Confirmed: int(confirmed.Load()),
		Failed:    int(failed.Load()),
		Errors:    int(errs.Load()),
	}, err
}
