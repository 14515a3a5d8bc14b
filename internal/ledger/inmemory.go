package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

type inMemoryTx struct {
	from, to      string
	amount        int64
	confirmations int
	observed      bool
	reverted      bool
}

type inMemoryLedger struct {
	mu           sync.RWMutex
	accounts     map[string]DerivationInput
	balances     map[string]int64
	transactions map[string]*inMemoryTx
	nonce        uint64
}

// NewInMemory creates a concurrency-safe in-memory ledger client useful for
// unit tests and local development.
func NewInMemory() Client {
	return &inMemoryLedger{
		accounts:     make(map[string]DerivationInput),
		balances:     make(map[string]int64),
		transactions: make(map[string]*inMemoryTx),
	}
}

func (l *inMemoryLedger) DeriveWallet(_ context.Context, input DerivationInput) (string, error) {
	sum := sha256.Sum256(input[:])
	address := "0x" + hex.EncodeToString(sum[:20])

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[address]; !exists {
		l.accounts[address] = input
		l.balances[address] = 0
	}
	return address, nil
}

func (l *inMemoryLedger) Balance(_ context.Context, address string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[normalize(address)], nil
}

func (l *inMemoryLedger) Broadcast(_ context.Context, from, to string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrRejected)
	}
	from, to = normalize(from), normalize(to)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.accounts[from]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAccount, from)
	}
	if l.balances[from] < amount {
		return "", fmt.Errorf("%w: insufficient funds", ErrRejected)
	}

	l.balances[from] -= amount
	l.balances[to] += amount
	l.nonce++

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d:%d", from, to, amount, l.nonce)))
	hash := "0x" + hex.EncodeToString(sum[:])
	l.transactions[hash] = &inMemoryTx{from: from, to: to, amount: amount}
	return hash, nil
}

func (l *inMemoryLedger) TxStatus(_ context.Context, hash string) (TxStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.transactions[normalize(hash)]
	if !ok {
		return TxStatus{}, ErrNotFound
	}
	return TxStatus{Observed: tx.observed, Confirmations: tx.confirmations, Reverted: tx.reverted}, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
