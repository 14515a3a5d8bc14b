package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []struct {
	name string
	sql  string
}{
	{"phone_identities", `CREATE TABLE IF NOT EXISTS phone_identities (
        phone       TEXT PRIMARY KEY,
        status      TEXT NOT NULL CHECK (status IN ('unverified', 'verified')),
        verified_at TIMESTAMPTZ,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`},
	{"wallet_accounts", `CREATE TABLE IF NOT EXISTS wallet_accounts (
        phone      TEXT PRIMARY KEY REFERENCES phone_identities (phone),
        address    TEXT NOT NULL UNIQUE,
        currency   TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`},
	{"transaction_records", `CREATE TABLE IF NOT EXISTS transaction_records (
        id             UUID PRIMARY KEY,
        hash           TEXT UNIQUE,
        phone          TEXT NOT NULL,
        from_address   TEXT NOT NULL,
        to_address     TEXT NOT NULL,
        amount         BIGINT NOT NULL CHECK (amount > 0),
        state          TEXT NOT NULL,
        reason         TEXT NOT NULL DEFAULT '',
        confirmations  INTEGER NOT NULL DEFAULT 0,
        submitted_at   TIMESTAMPTZ NOT NULL,
        last_polled_at TIMESTAMPTZ,
        terminal_at    TIMESTAMPTZ
    )`},
	{"transaction_records_state_idx", `CREATE INDEX IF NOT EXISTS transaction_records_state_idx
        ON transaction_records (state, submitted_at)`},
}

// EnsureSchema creates the gateway tables when they are missing. Every
// statement is idempotent so it is safe to run on each start.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt.sql); err != nil {
			return fmt.Errorf("ensure %s: %w", stmt.name, err)
		}
	}
	return nil
}
