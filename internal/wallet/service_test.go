package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/congo-pay/phonewallet/internal/identity"
	"github.com/congo-pay/phonewallet/internal/ledger"
	"github.com/congo-pay/phonewallet/internal/verification"
)

const testPhone = "+15550001111"

type countingLedger struct {
	ledger.Client
	derives atomic.Int32
	err     error
}

func (l *countingLedger) DeriveWallet(ctx context.Context, in ledger.DerivationInput) (string, error) {
	l.derives.Add(1)
	if l.err != nil {
		return "", l.err
	}
	return l.Client.DeriveWallet(ctx, in)
}

func newTestService(t *testing.T, verified ...string) (*Service, identity.Repository, *countingLedger) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo, verification.NewStaticGateway(verified...), nil, nil)
	for _, p := range verified {
		if _, err := ids.Verify(context.Background(), p); err != nil {
			t.Fatalf("verify %s: %v", p, err)
		}
	}
	led := &countingLedger{Client: ledger.NewInMemory()}
	return NewService(ids, led, Options{Currency: "ETH", MinPasswordLength: 8}, nil, nil), repo, led
}

func TestProvisionIsIdempotent(t *testing.T) {
	svc, _, led := newTestService(t, testPhone)
	ctx := context.Background()

	first, err := svc.Provision(ctx, testPhone, "correct1horse")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if first.Address == "" || first.Currency != "ETH" {
		t.Fatalf("unexpected wallet %+v", first)
	}

	second, err := svc.Provision(ctx, "+1 555 000 1111", "another2password")
	if err != nil {
		t.Fatalf("provision again: %v", err)
	}
	if second.Address != first.Address {
		t.Fatalf("expected address %s, got %s", first.Address, second.Address)
	}
	if n := led.derives.Load(); n != 2 {
		t.Fatalf("expected a creating and a restoring derivation, got %d", n)
	}

	if _, err := svc.Provision(ctx, testPhone, "weak"); err != nil {
		t.Fatalf("existing wallet must be returned for any password: %v", err)
	}
	if n := led.derives.Load(); n != 2 {
		t.Fatalf("a password failing policy must not derive, got %d derivations", n)
	}
}

func TestProvisionUnverified(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, testPhone, "correct1horse"); !errors.Is(err, ErrIdentityNotVerified) {
		t.Fatalf("expected ErrIdentityNotVerified for unknown phone, got %v", err)
	}

	if _, err := repo.Ensure(ctx, testPhone, time.Now()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := svc.Provision(ctx, testPhone, "correct1horse"); !errors.Is(err, ErrIdentityNotVerified) {
		t.Fatalf("expected ErrIdentityNotVerified for unverified phone, got %v", err)
	}
	if _, err := repo.Wallet(ctx, testPhone); !errors.Is(err, identity.ErrNoWallet) {
		t.Fatalf("expected no binding, got %v", err)
	}
}

func TestProvisionWeakCredential(t *testing.T) {
	svc, repo, _ := newTestService(t, testPhone)
	ctx := context.Background()

	for _, pw := range []string{"short1", "allletters", "12345678"} {
		if _, err := svc.Provision(ctx, testPhone, pw); !errors.Is(err, ErrWeakCredential) {
			t.Fatalf("expected ErrWeakCredential for %q, got %v", pw, err)
		}
	}
	if _, err := repo.Wallet(ctx, testPhone); !errors.Is(err, identity.ErrNoWallet) {
		t.Fatalf("weak credential must not bind a wallet")
	}
}

func TestProvisionLedgerUnavailable(t *testing.T) {
	svc, repo, led := newTestService(t, testPhone)
	led.err = ledger.ErrUnavailable

	if _, err := svc.Provision(context.Background(), testPhone, "correct1horse"); !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("expected ledger.ErrUnavailable, got %v", err)
	}
	if _, err := repo.Wallet(context.Background(), testPhone); !errors.Is(err, identity.ErrNoWallet) {
		t.Fatalf("failed provisioning must not bind a wallet")
	}

	led.err = nil
	if _, err := svc.Provision(context.Background(), testPhone, "correct1horse"); err != nil {
		t.Fatalf("retry after outage: %v", err)
	}
}

func TestProvisionConcurrentSingleBinding(t *testing.T) {
	svc, repo, _ := newTestService(t, testPhone)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	addresses := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Distinct passwords would derive distinct wallets without per-phone exclusion.
			w, err := svc.Provision(ctx, testPhone, "password"+string(rune('a'+i))+"1")
			if err != nil {
				t.Errorf("provision %d: %v", i, err)
				return
			}
			addresses[i] = w.Address
		}(i)
	}
	wg.Wait()

	for i, a := range addresses {
		if a != addresses[0] {
			t.Fatalf("caller %d got %s, expected %s", i, a, addresses[0])
		}
	}
	bound, err := repo.Wallet(ctx, testPhone)
	if err != nil {
		t.Fatalf("load binding: %v", err)
	}
	if bound.Address != addresses[0] {
		t.Fatalf("binding holds %s, callers got %s", bound.Address, addresses[0])
	}
}

func TestProvisionAfterRestartRestoresSigningKey(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo, verification.NewStaticGateway(testPhone), nil, nil)
	if _, err := ids.Verify(ctx, testPhone); err != nil {
		t.Fatalf("verify: %v", err)
	}

	before := NewService(ids, ledger.NewInMemory(), Options{}, nil, nil)
	created, err := before.Provision(ctx, testPhone, "correct1horse")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	// A fresh ledger client holds no keys, as after a process restart.
	fresh := ledger.NewInMemory()
	ledger.SeedBalance(fresh, created.Address, 1_000)
	if _, err := fresh.Broadcast(ctx, created.Address, "0x00000000000000000000000000000000000000aa", 10); !errors.Is(err, ledger.ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount before provisioning again, got %v", err)
	}

	after := NewService(ids, fresh, Options{}, nil, nil)
	again, err := after.Provision(ctx, testPhone, "correct1horse")
	if err != nil {
		t.Fatalf("provision after restart: %v", err)
	}
	if again.Address != created.Address || !again.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected the bound wallet unchanged, got %+v", again)
	}
	if _, err := fresh.Broadcast(ctx, created.Address, "0x00000000000000000000000000000000000000aa", 10); err != nil {
		t.Fatalf("broadcast after restore: %v", err)
	}
}

func TestProvisionWrongPasswordKeepsWallet(t *testing.T) {
	svc, _, led := newTestService(t, testPhone)
	ctx := context.Background()

	created, err := svc.Provision(ctx, testPhone, "correct1horse")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	fresh := ledger.NewInMemory()
	led.Client = fresh
	got, err := svc.Provision(ctx, testPhone, "wrong2battery")
	if err != nil {
		t.Fatalf("provision with other password: %v", err)
	}
	if got.Address != created.Address || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected the bound wallet unchanged, got %+v", got)
	}
	ledger.SeedBalance(fresh, created.Address, 1_000)
	if _, err := fresh.Broadcast(ctx, created.Address, "0x00000000000000000000000000000000000000aa", 10); !errors.Is(err, ledger.ErrUnknownAccount) {
		t.Fatalf("a non-matching password must not unlock the wallet, got %v", err)
	}
}

type racingIdentities struct {
	Identities
	winner identity.WalletAccount
}

func (r *racingIdentities) Bind(ctx context.Context, account identity.WalletAccount) (identity.WalletAccount, error) {
	// Simulate another process binding between our lookup and our bind.
	if _, err := r.Identities.Bind(ctx, r.winner); err != nil {
		return identity.WalletAccount{}, err
	}
	return r.Identities.Bind(ctx, account)
}

func TestProvisionRaceLostReturnsWinner(t *testing.T) {
	repo := identity.NewMemoryRepository()
	ids := identity.NewService(repo, verification.NewStaticGateway(testPhone), nil, nil)
	if _, err := ids.Verify(context.Background(), testPhone); err != nil {
		t.Fatalf("verify: %v", err)
	}
	winner := identity.WalletAccount{Phone: testPhone, Address: "0xwinner", Currency: "ETH", CreatedAt: time.Now()}
	svc := NewService(&racingIdentities{Identities: ids, winner: winner}, ledger.NewInMemory(), Options{}, nil, nil)

	got, err := svc.Provision(context.Background(), testPhone, "correct1horse")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if got.Address != "0xwinner" {
		t.Fatalf("expected winner's wallet, got %s", got.Address)
	}
}

func TestDeriveInputDeterministic(t *testing.T) {
	a := DeriveInput(testPhone, "correct1horse")
	b := DeriveInput(testPhone, "correct1horse")
	if a != b {
		t.Fatalf("expected identical derivation input")
	}
	if a == DeriveInput(testPhone, "correct1horsf") {
		t.Fatalf("different passwords must derive different input")
	}
	if a == DeriveInput("+15550002222", "correct1horse") {
		t.Fatalf("different phones must derive different input")
	}
}
