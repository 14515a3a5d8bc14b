package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists phone identities and their wallet binding.
type Repository interface {
	// Ensure creates an unverified identity if none exists and returns the stored one.
	Ensure(ctx context.Context, phone string, at time.Time) (PhoneIdentity, error)
	Get(ctx context.Context, phone string) (PhoneIdentity, error)
	// MarkVerified upserts the identity as verified. Verification is never undone
	// and the first verification time is kept.
	MarkVerified(ctx context.Context, phone string, at time.Time) (PhoneIdentity, error)
	// Bind attaches a wallet to an existing identity. Binding the same address
	// again is a no-op; a different address fails with ErrAlreadyBound.
	Bind(ctx context.Context, account WalletAccount) (WalletAccount, error)
	Wallet(ctx context.Context, phone string) (WalletAccount, error)
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `phone, status, verified_at, created_at`

func scanIdentity(row pgx.Row) (PhoneIdentity, error) {
	var (
		p          PhoneIdentity
		status     string
		verifiedAt *time.Time
	)
	if err := row.Scan(&p.Phone, &status, &verifiedAt, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PhoneIdentity{}, ErrNotFound
		}
		return PhoneIdentity{}, err
	}
	p.Status = Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	if verifiedAt != nil {
		v := verifiedAt.UTC()
		p.VerifiedAt = &v
	}
	return p, nil
}

// Ensure inserts an unverified identity unless one is already stored.
func (r *PostgresRepository) Ensure(ctx context.Context, phone string, at time.Time) (PhoneIdentity, error) {
	if _, err := r.db.Exec(ctx, `INSERT INTO phone_identities (phone, status, created_at)
        VALUES ($1, $2, $3) ON CONFLICT (phone) DO NOTHING`, phone, string(StatusUnverified), at.UTC()); err != nil {
		return PhoneIdentity{}, err
	}
	return r.Get(ctx, phone)
}

// Get fetches an identity by canonical phone.
func (r *PostgresRepository) Get(ctx context.Context, phone string) (PhoneIdentity, error) {
	return scanIdentity(r.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM phone_identities WHERE phone = $1`, phone))
}

// MarkVerified upserts the identity in the verified state in a single statement.
func (r *PostgresRepository) MarkVerified(ctx context.Context, phone string, at time.Time) (PhoneIdentity, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO phone_identities (phone, status, verified_at, created_at)
        VALUES ($1, $2, $3, $3)
        ON CONFLICT (phone) DO UPDATE
            SET status = EXCLUDED.status,
                verified_at = COALESCE(phone_identities.verified_at, EXCLUDED.verified_at)
        RETURNING `+identityColumns, phone, string(StatusVerified), at.UTC())
	return scanIdentity(row)
}

// Bind inserts the binding only when the identity exists and has none yet.
func (r *PostgresRepository) Bind(ctx context.Context, account WalletAccount) (WalletAccount, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO wallet_accounts (phone, address, currency, created_at)
        SELECT $1, $2, $3, $4
        WHERE EXISTS (SELECT 1 FROM phone_identities WHERE phone = $1)
        ON CONFLICT (phone) DO NOTHING
        RETURNING phone, address, currency, created_at`,
		account.Phone, account.Address, account.Currency, account.CreatedAt.UTC())
	bound, err := scanWallet(row)
	if err == nil {
		return bound, nil
	}
	if !errors.Is(err, ErrNoWallet) {
		return WalletAccount{}, err
	}

	// Nothing inserted: either the identity is missing or a binding exists.
	existing, err := r.Wallet(ctx, account.Phone)
	if errors.Is(err, ErrNoWallet) {
		return WalletAccount{}, ErrNotFound
	}
	if err != nil {
		return WalletAccount{}, err
	}
	if existing.Address != account.Address {
		return existing, ErrAlreadyBound
	}
	return existing, nil
}

// Wallet returns the wallet bound to phone.
func (r *PostgresRepository) Wallet(ctx context.Context, phone string) (WalletAccount, error) {
	return scanWallet(r.db.QueryRow(ctx, `SELECT phone, address, currency, created_at FROM wallet_accounts WHERE phone = $1`, phone))
}

func scanWallet(row pgx.Row) (WalletAccount, error) {
	var w WalletAccount
	if err := row.Scan(&w.Phone, &w.Address, &w.Currency, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WalletAccount{}, ErrNoWallet
		}
		return WalletAccount{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}
