package ledger

// SeedBalance is a test helper that seeds the balance for an address when using the in-memory ledger.
func SeedBalance(l Client, address string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[normalize(address)] = amount
	}
}

// Mine advances a transaction on the in-memory ledger: it becomes observed and
// gains the given number of confirmations. A reverted transaction reports failure.
func Mine(l Client, hash string, confirmations int, reverted bool) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		if tx, ok := mem.transactions[normalize(hash)]; ok {
			tx.observed = true
			tx.confirmations += confirmations
			tx.reverted = reverted
		}
	}
}

// Drop forgets a transaction so the in-memory ledger reports it as not found.
func Drop(l Client, hash string) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		delete(mem.transactions, normalize(hash))
	}
}
