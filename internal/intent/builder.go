package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
)

var (
	// ErrRendererFailure marks a presentation that fell back to the canonical
	// string because the image could not be rendered. Retrying may succeed.
	ErrRendererFailure = errors.New("payment intent rendering failed")
	// ErrInvalidAmount is returned for a requested amount that is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidMemo is returned for a memo longer than MaxMemoLength.
	ErrInvalidMemo = errors.New("memo too long")
)

// Wallets resolves a phone number to its wallet.
type Wallets interface {
	Wallet(ctx context.Context, phone string) (identity.WalletAccount, error)
}

// Presentation is what a client shows the payer.
type Presentation struct {
	Intent Intent
	// ImageReference is the rendered image, or the canonical URI on fallback.
	ImageReference string
	Fallback       bool
	// RenderErr wraps ErrRendererFailure when Fallback is set.
	RenderErr error
}

// Builder creates payment intents for wallets.
type Builder struct {
	wallets  Wallets
	renderer Renderer
	scheme   string
	expiry   time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Options tunes intent construction.
type Options struct {
	Scheme string
	Expiry time.Duration
}

// NewBuilder builds a payment intent builder.
func NewBuilder(wallets Wallets, renderer Renderer, opts Options, logger *slog.Logger, m *metrics.Metrics) *Builder {
	if opts.Scheme == "" {
		opts.Scheme = "ethereum"
	}
	if opts.Expiry <= 0 {
		opts.Expiry = 5 * time.Minute
	}
	return &Builder{
		wallets:  wallets,
		renderer: renderer,
		scheme:   opts.Scheme,
		expiry:   opts.Expiry,
		logger:   logging.Component(logger, "intent"),
		metrics:  m,
		now:      time.Now,
	}
}

// Build validates the request and describes a payment to the wallet bound to phone.
func (b *Builder) Build(ctx context.Context, phone string, amount *int64, memo string) (Intent, error) {
	if amount != nil && *amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	if utf8.RuneCountInString(memo) > MaxMemoLength {
		return Intent{}, fmt.Errorf("%w: at most %d characters", ErrInvalidMemo, MaxMemoLength)
	}
	w, err := b.wallets.Wallet(ctx, phone)
	if err != nil {
		return Intent{}, err
	}

	now := b.now().UTC()
	in := Intent{
		Scheme:    b.scheme,
		Address:   w.Address,
		Currency:  w.Currency,
		Memo:      memo,
		CreatedAt: now,
		ExpiresAt: now.Add(b.expiry),
	}
	if amount != nil {
		v := *amount
		in.Amount = &v
	}
	return in, nil
}

// Present builds an intent and renders it. A renderer failure does not fail
// the call: the canonical URI is presented instead and RenderErr is set.
func (b *Builder) Present(ctx context.Context, phone string, amount *int64, memo string) (Presentation, error) {
	in, err := b.Build(ctx, phone, amount, memo)
	if err != nil {
		return Presentation{}, err
	}
	uri := in.URI()

	image, err := b.renderer.Render(ctx, uri)
	if err != nil {
		b.metrics.RecordIntent("fallback")
		b.logger.Warn("rendering payment intent failed", slog.String("address", in.Address), slog.Any("error", err))
		return Presentation{
			Intent:         in,
			ImageReference: uri,
			Fallback:       true,
			RenderErr:      fmt.Errorf("%w: %w", ErrRendererFailure, err),
		}, nil
	}
	b.metrics.RecordIntent("rendered")
	return Presentation{Intent: in, ImageReference: image}, nil
}
