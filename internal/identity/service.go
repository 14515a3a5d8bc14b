package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/congo-pay/phonewallet/internal/logging"
	"github.com/congo-pay/phonewallet/internal/metrics"
	"github.com/congo-pay/phonewallet/internal/verification"
)

type confirmer interface {
	Confirm(ctx context.Context, phone string) error
}

// Service manages phone identities and resolves them to wallets. Every entry
// point accepts a raw phone number and canonicalizes it first.
type Service struct {
	repo    Repository
	gateway verification.Gateway
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, gateway verification.Gateway, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		logger:  logging.Component(logger, "identity"),
		metrics: m,
		now:     time.Now,
	}
}

// Verify asks the verification channel whether the phone is confirmed and
// records the answer. Already verified identities are returned without a lookup.
func (s *Service) Verify(ctx context.Context, phone string) (PhoneIdentity, error) {
	canonical, err := Canonicalize(phone)
	if err != nil {
		return PhoneIdentity{}, err
	}

	existing, err := s.repo.Get(ctx, canonical)
	switch {
	case err == nil && existing.Verified():
		s.metrics.RecordVerification("verified")
		return existing, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return PhoneIdentity{}, fmt.Errorf("load identity: %w", err)
	}

	ok, err := s.gateway.IsVerified(ctx, canonical)
	if err != nil {
		s.metrics.RecordVerification("error")
		return PhoneIdentity{}, err
	}
	if !ok {
		s.metrics.RecordVerification("unverified")
		return s.repo.Ensure(ctx, canonical, s.now())
	}

	identity, err := s.repo.MarkVerified(ctx, canonical, s.now())
	if err != nil {
		return PhoneIdentity{}, fmt.Errorf("mark verified: %w", err)
	}
	s.metrics.RecordVerification("verified")
	s.logger.Info("phone verified", slog.String("phone", canonical))
	return identity, nil
}

// Confirm records a provider confirmation for phone in the gateway and marks
// the identity verified.
func (s *Service) Confirm(ctx context.Context, phone string) (PhoneIdentity, error) {
	canonical, err := Canonicalize(phone)
	if err != nil {
		return PhoneIdentity{}, err
	}
	c, ok := s.gateway.(confirmer)
	if !ok {
		return PhoneIdentity{}, ErrConfirmUnsupported
	}
	if err := c.Confirm(ctx, canonical); err != nil {
		return PhoneIdentity{}, err
	}
	identity, err := s.repo.MarkVerified(ctx, canonical, s.now())
	if err != nil {
		return PhoneIdentity{}, fmt.Errorf("mark verified: %w", err)
	}
	s.logger.Info("phone confirmed by provider", slog.String("phone", canonical))
	return identity, nil
}

// Identity returns the stored identity for phone.
func (s *Service) Identity(ctx context.Context, phone string) (PhoneIdentity, error) {
	canonical, err := Canonicalize(phone)
	if err != nil {
		return PhoneIdentity{}, err
	}
	return s.repo.Get(ctx, canonical)
}

// Wallet resolves phone to its bound wallet.
func (s *Service) Wallet(ctx context.Context, phone string) (WalletAccount, error) {
	canonical, err := Canonicalize(phone)
	if err != nil {
		return WalletAccount{}, err
	}
	return s.repo.Wallet(ctx, canonical)
}

// Bind attaches account to its identity. The phone on account must already be canonical.
func (s *Service) Bind(ctx context.Context, account WalletAccount) (WalletAccount, error) {
	return s.repo.Bind(ctx, account)
}
