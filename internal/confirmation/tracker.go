package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/keylock"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
	"github.com/congo-pay/phonewallet/internal/notification"
)

// ErrInvalidTransfer is returned for a submission with a non-positive amount
// or without a destination.
var ErrInvalidTransfer = errors.New("invalid transfer")

// Wallets resolves a phone number to its wallet.
type Wallets interface {
	Wallet(ctx context.Context, phone string) (identity.WalletAccount, error)
}

// BalanceInvalidator drops cached balances after funds move.
type BalanceInvalidator interface {
	Invalidate(address string)
}

// Tracker drives transactions through the confirmation state machine. It
// never polls on its own; an external scheduler calls Poll.
type Tracker struct {
	wallets  Wallets
	ledger   ledger.Client
	store    Store
	notifier notification.Notifier
	balances BalanceInvalidator
	locks    *keylock.Arena
	depth    int
	maxWait  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Options tunes the state machine.
type Options struct {
	// Depth is the number of confirmations after which a transaction is final.
	Depth int
	// MaxWait bounds how long a transaction may go unobserved before it fails with ReasonTimeout.
	MaxWait time.Duration
}

// NewTracker builds a confirmation tracker. notifier and balances may be nil.
func NewTracker(wallets Wallets, led ledger.Client, store Store, notifier notification.Notifier, balances BalanceInvalidator, opts Options, logger *slog.Logger, m *metrics.Metrics) *Tracker {
	if opts.Depth <= 0 {
		opts.Depth = 12
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 30 * time.Minute
	}
	return &Tracker{
		wallets:  wallets,
		ledger:   led,
		store:    store,
		notifier: notifier,
		balances: balances,
		locks:    keylock.New(),
		depth:    opts.Depth,
		maxWait:  opts.MaxWait,
		logger:   logging.Component(logger, "confirmation"),
		metrics:  m,
		now:      time.Now,
	}
}

// Submit broadcasts a transfer from the wallet bound to phone. The record is
// stored as Submitted before broadcasting. A ledger rejection fails it; any
// other broadcast error leaves it Submitted and is returned. That includes
// ledger.ErrUnknownAccount, raised before anything reaches the ledger when the
// signing key for the source wallet is not loaded in this process.
func (t *Tracker) Submit(ctx context.Context, phone, to string, amount int64) (Record, error) {
	to = strings.TrimSpace(to)
	if amount <= 0 {
		return Record{}, fmt.Errorf("%w: amount must be positive", ErrInvalidTransfer)
	}
	if to == "" {
		return Record{}, fmt.Errorf("%w: destination required", ErrInvalidTransfer)
	}
	w, err := t.wallets.Wallet(ctx, phone)
	if err != nil {
		return Record{}, err
	}
	if strings.EqualFold(w.Address, to) {
		return Record{}, fmt.Errorf("%w: destination is the source wallet", ErrInvalidTransfer)
	}

	record := Record{
		ID:          uuid.NewString(),
		Phone:       w.Phone,
		From:        w.Address,
		To:          to,
		Amount:      amount,
		State:       StateSubmitted,
		SubmittedAt: t.now().UTC(),
	}
	if err := t.store.Create(ctx, record); err != nil {
		return Record{}, fmt.Errorf("store record: %w", err)
	}
	t.metrics.RecordTransition(string(StateSubmitted))

	hash, err := t.ledger.Broadcast(ctx, record.From, record.To, record.Amount)
	// Once the ledger has answered, its answer is recorded even if the caller has gone.
	commitCtx := context.WithoutCancel(ctx)
	if err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			failed, commitErr := t.commit(commitCtx, record, func(r Record) (Record, error) {
				return r.Failed(ReasonRejected, t.now())
			})
			if commitErr != nil {
				return record, commitErr
			}
			return failed, err
		}
		t.logger.Warn("broadcast failed, record left submitted",
			slog.String("id", record.ID), slog.Any("error", err))
		return record, err
	}

	pending, err := t.commit(commitCtx, record, func(r Record) (Record, error) {
		return r.Acknowledged(normalizeHash(hash), t.now())
	})
	if err != nil {
		return record, err
	}
	if t.balances != nil {
		t.balances.Invalidate(pending.From)
	}
	return pending, nil
}

// Poll asks the ledger about hash and advances its record. Polls for the
// same hash are serialized. Terminal records are returned unchanged; a
// ledger error leaves the record unchanged and is returned with it.
func (t *Tracker) Poll(ctx context.Context, hash string) (Record, error) {
	hash = normalizeHash(hash)
	release, err := t.locks.Lock(ctx, hash)
	if err != nil {
		return Record{}, err
	}
	defer release()

	record, err := t.store.ByHash(ctx, hash)
	if err != nil {
		return Record{}, err
	}
	if record.State.Terminal() {
		return record, nil
	}

	status, err := t.ledger.TxStatus(ctx, hash)
	notFound := errors.Is(err, ledger.ErrNotFound)
	if err != nil && !notFound {
		return record, fmt.Errorf("poll %s: %w", hash, err)
	}

	now := t.now()
	next := func(r Record) (Record, error) {
		switch {
		case status.Observed && status.Reverted:
			return r.Failed(ReasonRejected, now)
		case status.Observed && status.Confirmations >= t.depth:
			return r.Confirmed(status.Confirmations, now)
		case (notFound || !status.Observed) && now.Sub(r.SubmittedAt) >= t.maxWait:
			return r.Failed(ReasonTimeout, now)
		default:
			return r.Observed(status.Confirmations, now)
		}
	}
	return t.commit(ctx, record, next)
}

// Get returns the record for hash without consulting the ledger.
func (t *Tracker) Get(ctx context.Context, hash string) (Record, error) {
	return t.store.ByHash(ctx, normalizeHash(hash))
}

// Pending lists records awaiting a terminal state, for the scheduler.
func (t *Tracker) Pending(ctx context.Context, limit int) ([]Record, error) {
	return t.store.Pending(ctx, limit)
}

// Unsent lists Submitted records older than age that never received a hash.
// Nothing polls them; the transfer has to be submitted again.
func (t *Tracker) Unsent(ctx context.Context, age time.Duration, limit int) ([]Record, error) {
	return t.store.Unsent(ctx, t.now().Add(-age), limit)
}

// commit applies step to record and stores the result with a compare-and-set
// on record's state. Losing the race returns the stored winner instead.
func (t *Tracker) commit(ctx context.Context, record Record, step func(Record) (Record, error)) (Record, error) {
	next, err := step(record)
	if err != nil {
		return record, err
	}
	if err := t.store.Update(ctx, record.State, next); err != nil {
		if errors.Is(err, ErrConflict) && record.Hash != "" {
			return t.store.ByHash(ctx, record.Hash)
		}
		return record, fmt.Errorf("store record: %w", err)
	}
	if next.State != record.State {
		t.metrics.RecordTransition(string(next.State))
		t.logger.Info("transaction state changed",
			slog.String("id", next.ID),
			slog.String("hash", next.Hash),
			slog.String("from", string(record.State)),
			slog.String("to", string(next.State)),
			slog.String("reason", string(next.Reason)),
		)
		t.notify(ctx, next)
	}
	return next, nil
}

func (t *Tracker) notify(ctx context.Context, r Record) {
	if t.notifier == nil {
		return
	}
	var kind string
	switch r.State {
	case StatePending:
		kind = notification.KindTransactionPending
	case StateConfirmed:
		kind = notification.KindTransactionConfirmed
	case StateFailed:
		kind = notification.KindTransactionFailed
	default:
		return
	}
	err := t.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: r.Phone,
		Body:        fmt.Sprintf("Transaction %s to %s is %s", r.Hash, r.To, r.State),
		Attributes: map[string]string{
			"id":            r.ID,
			"hash":          r.Hash,
			"state":         string(r.State),
			"reason":        string(r.Reason),
			"amount":        strconv.FormatInt(r.Amount, 10),
			"confirmations": strconv.Itoa(r.Confirmations),
		},
	})
	t.metrics.RecordNotification(err)
	if err != nil {
		t.logger.Warn("notify transaction state", slog.String("id", r.ID), slog.Any("error", err))
	}
}

func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
