package confirmation

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a record would leave a terminal
// state or move backwards.
var ErrInvalidTransition = errors.New("invalid transaction state transition")

// State is the position of a transaction in the confirmation state machine:
// Submitted -> Pending -> Confirmed | Failed.
type State string

const (
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Reason explains why a transaction failed.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonRejected Reason = "rejected"
	ReasonTimeout  Reason = "timeout"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

func (s State) rank() int {
	switch s {
	case StateSubmitted:
		return 0
	case StatePending:
		return 1
	case StateConfirmed, StateFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether a record in state from may move to state to.
// Pending may be re-entered to record new confirmations.
func CanTransition(from, to State) bool {
	if from.rank() < 0 || to.rank() < 0 || from.Terminal() {
		return false
	}
	if from == StatePending && to == StatePending {
		return true
	}
	return to.rank() > from.rank()
}

// Record is the tracker's view of one submitted transaction.
type Record struct {
	ID            string
	Hash          string
	Phone         string
	From          string
	To            string
	Amount        int64
	State         State
	Reason        Reason
	Confirmations int
	SubmittedAt   time.Time
	LastPolledAt  *time.Time
	TerminalAt    *time.Time
}

func (r Record) transition(to State, at time.Time) (Record, error) {
	if !CanTransition(r.State, to) {
		return r, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, to)
	}
	at = at.UTC()
	r.State = to
	if to.Terminal() {
		r.TerminalAt = &at
	}
	return r, nil
}

// Acknowledged moves a submitted record to Pending once the ledger returned a hash.
func (r Record) Acknowledged(hash string, at time.Time) (Record, error) {
	if r.State != StateSubmitted {
		return r, fmt.Errorf("%w: acknowledge from %s", ErrInvalidTransition, r.State)
	}
	next, err := r.transition(StatePending, at)
	if err != nil {
		return r, err
	}
	next.Hash = hash
	return next, nil
}

// Observed records a poll that left the transaction pending.
func (r Record) Observed(confirmations int, at time.Time) (Record, error) {
	next, err := r.transition(StatePending, at)
	if err != nil {
		return r, err
	}
	if confirmations > next.Confirmations {
		next.Confirmations = confirmations
	}
	polled := at.UTC()
	next.LastPolledAt = &polled
	return next, nil
}

// Confirmed marks the transaction as having reached the confirmation depth.
func (r Record) Confirmed(confirmations int, at time.Time) (Record, error) {
	next, err := r.transition(StateConfirmed, at)
	if err != nil {
		return r, err
	}
	next.Confirmations = confirmations
	polled := at.UTC()
	next.LastPolledAt = &polled
	return next, nil
}

// Failed marks the transaction as terminally failed for reason.
func (r Record) Failed(reason Reason, at time.Time) (Record, error) {
	next, err := r.transition(StateFailed, at)
	if err != nil {
		return r, err
	}
	next.Reason = reason
	if r.State == StatePending {
		polled := at.UTC()
		next.LastPolledAt = &polled
	}
	return next, nil
}
