package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/argon2"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/keylock"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
)

var (
	// ErrIdentityNotVerified is returned when provisioning is requested for a phone that is not verified.
	ErrIdentityNotVerified = errors.New("identity not verified")
	// ErrWeakCredential is returned when the password does not meet the strength policy.
	ErrWeakCredential = errors.New("password does not meet strength policy")
)

const derivationSaltPrefix = "phonewallet/v1:"

// Argon2id parameters for wallet derivation. Changing any of them changes
// every derived address, so they are versioned through the salt prefix.
const (
	kdfTime    = 2
	kdfMemory  = 19 * 1024
	kdfThreads = 1
)

// Identities is the view of the identity store the provisioner needs.
type Identities interface {
	Identity(ctx context.Context, phone string) (identity.PhoneIdentity, error)
	Wallet(ctx context.Context, phone string) (identity.WalletAccount, error)
	Bind(ctx context.Context, account identity.WalletAccount) (identity.WalletAccount, error)
}

// Service provisions exactly one custodial wallet per verified phone.
type Service struct {
	identities     Identities
	ledger         ledger.Client
	locks          *keylock.Arena
	currency       string
	minPasswordLen int
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
}

// Options tunes provisioning.
type Options struct {
	Currency          string
	MinPasswordLength int
}

// NewService builds a wallet provisioning service.
func NewService(ids Identities, led ledger.Client, opts Options, logger *slog.Logger, m *metrics.Metrics) *Service {
	if opts.Currency == "" {
		opts.Currency = "ETH"
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 8
	}
	return &Service{
		identities:     ids,
		ledger:         led,
		locks:          keylock.New(),
		currency:       opts.Currency,
		minPasswordLen: opts.MinPasswordLength,
		logger:         logging.Component(logger, "wallet"),
		metrics:        m,
		now:            time.Now,
	}
}

// Provision returns the wallet bound to phone, creating it on first call.
// An existing wallet is returned unchanged whatever password is supplied.
// When that password passes policy it is derived again so the ledger reloads
// the signing key, which a restarted process no longer holds.
func (s *Service) Provision(ctx context.Context, phone, password string) (identity.WalletAccount, error) {
	id, err := s.identities.Identity(ctx, phone)
	if errors.Is(err, identity.ErrNotFound) {
		return identity.WalletAccount{}, ErrIdentityNotVerified
	}
	if err != nil {
		return identity.WalletAccount{}, err
	}
	if !id.Verified() {
		return identity.WalletAccount{}, ErrIdentityNotVerified
	}

	release, err := s.locks.Lock(ctx, id.Phone)
	if err != nil {
		return identity.WalletAccount{}, err
	}
	defer release()

	existing, err := s.identities.Wallet(ctx, id.Phone)
	if err == nil {
		s.metrics.RecordProvision("existing")
		s.restoreKey(ctx, existing, password)
		return existing, nil
	}
	if !errors.Is(err, identity.ErrNoWallet) {
		return identity.WalletAccount{}, fmt.Errorf("load wallet: %w", err)
	}

	if err := s.checkPassword(password); err != nil {
		return identity.WalletAccount{}, err
	}

	address, err := s.ledger.DeriveWallet(ctx, DeriveInput(id.Phone, password))
	if err != nil {
		s.metrics.RecordProvision("error")
		if errors.Is(err, ledger.ErrUnavailable) {
			return identity.WalletAccount{}, err
		}
		return identity.WalletAccount{}, fmt.Errorf("derive wallet: %w", err)
	}

	bound, err := s.identities.Bind(ctx, identity.WalletAccount{
		Phone:     id.Phone,
		Address:   address,
		Currency:  s.currency,
		CreatedAt: s.now().UTC(),
	})
	if errors.Is(err, identity.ErrAlreadyBound) {
		// Another process bound first; its wallet wins and ours is discarded.
		s.metrics.RecordProvision("race_lost")
		s.logger.Warn("wallet bind lost race", slog.String("phone", id.Phone), slog.String("discarded_address", address))
		return s.identities.Wallet(ctx, id.Phone)
	}
	if err != nil {
		s.metrics.RecordProvision("error")
		return identity.WalletAccount{}, fmt.Errorf("bind wallet: %w", err)
	}

	s.metrics.RecordProvision("created")
	s.logger.Info("wallet provisioned", slog.String("phone", bound.Phone), slog.String("address", bound.Address))
	return bound, nil
}

// restoreKey re-derives the bound wallet so its signing key is loaded. A
// password that derives some other address loads nothing useful and is logged.
func (s *Service) restoreKey(ctx context.Context, w identity.WalletAccount, password string) {
	if s.checkPassword(password) != nil {
		return
	}
	address, err := s.ledger.DeriveWallet(ctx, DeriveInput(w.Phone, password))
	if err != nil {
		s.logger.Warn("signing key not restored", slog.String("phone", w.Phone), slog.Any("error", err))
		return
	}
	if !strings.EqualFold(address, w.Address) {
		s.logger.Warn("password does not match bound wallet", slog.String("phone", w.Phone))
	}
}

func (s *Service) checkPassword(password string) error {
	if len([]rune(password)) < s.minPasswordLen {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakCredential, s.minPasswordLen)
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: must contain a letter and a digit", ErrWeakCredential)
	}
	return nil
}

// DeriveInput stretches (phone, password) into the ledger derivation input.
// The same pair always yields the same input.
func DeriveInput(phone, password string) ledger.DerivationInput {
	var out ledger.DerivationInput
	key := argon2.IDKey([]byte(password), []byte(derivationSaltPrefix+phone), kdfTime, kdfMemory, kdfThreads, uint32(len(out)))
	copy(out[:], key)
	return out
}
