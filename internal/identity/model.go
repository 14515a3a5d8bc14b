package identity

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no identity exists for a phone number.
	ErrNotFound = errors.New("identity not found")
	// ErrAlreadyBound is returned when a phone already owns a different wallet.
	ErrAlreadyBound = errors.New("identity already bound to a wallet")
	// ErrNoWallet is returned when a phone has no wallet bound yet.
	ErrNoWallet = errors.New("no wallet bound to identity")
	// ErrInvalidPhone is returned for numbers that cannot be put in E.164 form.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrConfirmUnsupported is returned when the configured gateway cannot record confirmations.
	ErrConfirmUnsupported = errors.New("verification gateway does not accept confirmations")
)

// Status is the verification state of a phone identity.
type Status string

const (
	StatusUnverified Status = "unverified"
	StatusVerified   Status = "verified"
)

// PhoneIdentity is a phone number whose ownership may have been confirmed.
type PhoneIdentity struct {
	Phone      string
	Status     Status
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Verified reports whether ownership of the phone has been confirmed.
func (p PhoneIdentity) Verified() bool {
	return p.Status == StatusVerified
}

// WalletAccount is the custodial wallet bound to exactly one phone identity.
type WalletAccount struct {
	Phone     string
	Address   string
	Currency  string
	CreatedAt time.Time
}
