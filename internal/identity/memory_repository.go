package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu         sync.RWMutex
	identities map[string]PhoneIdentity
	wallets    map[string]WalletAccount
}

// NewMemoryRepository builds an in-memory identity store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		identities: make(map[string]PhoneIdentity),
		wallets:    make(map[string]WalletAccount),
	}
}

func (r *memoryRepository) Ensure(_ context.Context, phone string, at time.Time) (PhoneIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.identities[phone]; ok {
		return existing, nil
	}
	p := PhoneIdentity{Phone: phone, Status: StatusUnverified, CreatedAt: at.UTC()}
	r.identities[phone] = p
	return p, nil
}

func (r *memoryRepository) Get(_ context.Context, phone string) (PhoneIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.identities[phone]
	if !ok {
		return PhoneIdentity{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) MarkVerified(_ context.Context, phone string, at time.Time) (PhoneIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at = at.UTC()
	p, ok := r.identities[phone]
	if !ok {
		p = PhoneIdentity{Phone: phone, CreatedAt: at}
	}
	p.Status = StatusVerified
	if p.VerifiedAt == nil {
		p.VerifiedAt = &at
	}
	r.identities[phone] = p
	return p, nil
}

func (r *memoryRepository) Bind(_ context.Context, account WalletAccount) (WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[account.Phone]; !ok {
		return WalletAccount{}, ErrNotFound
	}
	if existing, ok := r.wallets[account.Phone]; ok {
		if existing.Address != account.Address {
			return existing, ErrAlreadyBound
		}
		return existing, nil
	}
	account.CreatedAt = account.CreatedAt.UTC()
	r.wallets[account.Phone] = account
	return account, nil
}

func (r *memoryRepository) Wallet(_ context.Context, phone string) (WalletAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[phone]
	if !ok {
		return WalletAccount{}, ErrNoWallet
	}
	return w, nil
}
