package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
)

// ErrBalanceUnavailable is returned when the ledger cannot be read and no
// earlier snapshot exists to fall back on.
var ErrBalanceUnavailable = errors.New("balance unavailable")

// Snapshot is a point-in-time balance read. Snapshots are replaced on refresh,
// never modified.
type Snapshot struct {
	Address   string
	Amount    int64
	Currency  string
	FetchedAt time.Time
	TTL       time.Duration
	// Stale is set when the snapshot is served because a refresh failed.
	Stale bool
}

// Wallets resolves a phone number to its wallet.
type Wallets interface {
	Wallet(ctx context.Context, phone string) (identity.WalletAccount, error)
}

// Cache serves wallet balances with bounded staleness. Concurrent misses for
// the same address share a single ledger read.
type Cache struct {
	wallets        Wallets
	ledger         ledger.Client
	ttl            time.Duration
	refreshTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

// entry is a cached snapshot. An invalidated entry is never served as fresh
// but still backs a stale answer when the ledger cannot be read.
type entry struct {
	snap        Snapshot
	invalidated bool
}

// Options tunes the cache.
type Options struct {
	TTL            time.Duration
	RefreshTimeout time.Duration
}

// NewCache builds a balance cache.
func NewCache(wallets Wallets, led ledger.Client, opts Options, logger *slog.Logger, m *metrics.Metrics) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = 5 * time.Second
	}
	return &Cache{
		wallets:        wallets,
		ledger:         led,
		ttl:            opts.TTL,
		refreshTimeout: opts.RefreshTimeout,
		logger:         logging.Component(logger, "balance"),
		metrics:        m,
		now:            time.Now,
		entries:        make(map[string]entry),
	}
}

// Get returns the balance of the wallet bound to phone.
func (c *Cache) Get(ctx context.Context, phone string) (Snapshot, error) {
	w, err := c.wallets.Wallet(ctx, phone)
	if err != nil {
		return Snapshot{}, err
	}

	if snap, ok := c.fresh(w.Address); ok {
		c.metrics.RecordBalanceLookup("hit")
		return snap, nil
	}

	// The refresh outlives any single caller so a cancelled request does not
	// fail the others waiting on it.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(w.Address, func() (any, error) {
		return c.refresh(refreshCtx, w.Address, w.Currency)
	})

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

// Invalidate expires the cached balance for address so the next read goes to
// the ledger. The old snapshot is kept as the stale fallback.
func (c *Cache) Invalidate(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[address]; ok {
		e.invalidated = true
		c.entries[address] = e
	}
}

func (c *Cache) refresh(ctx context.Context, address, currency string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	amount, err := c.ledger.Balance(ctx, address)
	if err != nil {
		if prior, ok := c.lookup(address); ok {
			c.metrics.RecordBalanceLookup("stale")
			c.logger.Warn("serving stale balance", slog.String("address", address), slog.Any("error", err))
			prior.Stale = true
			return prior, nil
		}
		c.metrics.RecordBalanceLookup("error")
		return Snapshot{}, fmt.Errorf("%w: %w", ErrBalanceUnavailable, err)
	}

	snap := Snapshot{
		Address:   address,
		Amount:    amount,
		Currency:  currency,
		FetchedAt: c.now().UTC(),
		TTL:       c.ttl,
	}
	c.mu.Lock()
	c.entries[address] = entry{snap: snap}
	c.mu.Unlock()
	c.metrics.RecordBalanceLookup("miss")
	return snap, nil
}

func (c *Cache) lookup(address string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[address]
	return e.snap, ok
}

func (c *Cache) fresh(address string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[address]
	if !ok || e.invalidated || c.now().Sub(e.snap.FetchedAt) >= c.ttl {
		return Snapshot{}, false
	}
	return e.snap, true
}
