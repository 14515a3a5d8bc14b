package ledger

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable signals the ledger node could not be reached or answered
	// with a transient failure. Callers may retry.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRejected indicates the ledger refused a broadcast outright.
	ErrRejected = errors.New("transaction rejected")

	// ErrNotFound indicates the ledger has no record of the requested transaction.
	ErrNotFound = errors.New("transaction not found")

	// ErrUnknownAccount is returned when the ledger holds no signing material for an address.
	ErrUnknownAccount = errors.New("unknown account")
)

// DerivationInput is the deterministic seed from which the ledger derives
// wallet key material. Equal inputs always derive the same address.
type DerivationInput [32]byte

// TxStatus captures what the ledger currently knows about a transaction.
type TxStatus struct {
	// Observed is true once the transaction is included in a block.
	Observed bool
	// Confirmations counts blocks including and after the inclusion block.
	Confirmations int
	// Reverted is true when the ledger included the transaction but reports failure.
	Reverted bool
}

// Client defines the contract implemented by ledger backends (in-memory, Ethereum).
type Client interface {
	DeriveWallet(ctx context.Context, input DerivationInput) (string, error)
	Balance(ctx context.Context, address string) (int64, error)
	Broadcast(ctx context.Context, from, to string, amount int64) (string, error)
	TxStatus(ctx context.Context, hash string) (TxStatus, error)
}
