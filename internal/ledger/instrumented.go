package ledger

import (
	"context"
	"time"

	"github.com/congo-pay/phonewallet/internal/metrics"
)

type instrumented struct {
	next    Client
	metrics *metrics.Metrics
}

// Instrument wraps a client so every call is counted and timed. A nil
// metrics instance returns the client unchanged.
func Instrument(client Client, m *metrics.Metrics) Client {
	if m == nil {
		return client
	}
	return &instrumented{next: client, metrics: m}
}

func (c *instrumented) DeriveWallet(ctx context.Context, input DerivationInput) (string, error) {
	start := time.Now()
	address, err := c.next.DeriveWallet(ctx, input)
	c.metrics.RecordLedgerCall("derive_wallet", err, time.Since(start))
	return address, err
}

func (c *instrumented) Balance(ctx context.Context, address string) (int64, error) {
	start := time.Now()
	amount, err := c.next.Balance(ctx, address)
	c.metrics.RecordLedgerCall("balance", err, time.Since(start))
	return amount, err
}

func (c *instrumented) Broadcast(ctx context.Context, from, to string, amount int64) (string, error) {
	start := time.Now()
	hash, err := c.next.Broadcast(ctx, from, to, amount)
	c.metrics.RecordLedgerCall("broadcast", err, time.Since(start))
	return hash, err
}

func (c *instrumented) TxStatus(ctx context.Context, hash string) (TxStatus, error) {
	start := time.Now()
	status, err := c.next.TxStatus(ctx, hash)
	c.metrics.RecordLedgerCall("tx_status", err, time.Since(start))
	return status, err
}
