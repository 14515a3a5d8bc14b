package intent

import (
	"net/url"
	"strconv"
	"time"
)

// MaxMemoLength is the longest memo, in characters, an intent may carry.
const MaxMemoLength = 140

// Intent describes a payment to a wallet. It is immutable and stops being
// valid at ExpiresAt.
type Intent struct {
	Scheme   string
	Address  string
	Currency string
	// Amount is in minor units; nil leaves the amount to the payer.
	Amount    *int64
	Memo      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// URI renders the canonical payment string
// <scheme>:<address>?amount=..&currency=..&expires=..&memo=.. with keys in
// sorted order. Absent amount or memo are left out.
func (i Intent) URI() string {
	q := url.Values{}
	if i.Amount != nil {
		q.Set("amount", strconv.FormatInt(*i.Amount, 10))
	}
	q.Set("currency", i.Currency)
	q.Set("expires", strconv.FormatInt(i.ExpiresAt.Unix(), 10))
	if i.Memo != "" {
		q.Set("memo", i.Memo)
	}
	return i.Scheme + ":" + i.Address + "?" + q.Encode()
}

// Expired reports whether the intent is no longer valid at now.
func (i Intent) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
