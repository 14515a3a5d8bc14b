package confirmation

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]State]bool{
		{StateSubmitted, StatePending}:   true,
		{StateSubmitted, StateConfirmed}: true,
		{StateSubmitted, StateFailed}:    true,
		{StatePending, StatePending}:     true,
		{StatePending, StateConfirmed}:   true,
		{StatePending, StateFailed}:      true,
	}
	all := []State{StateSubmitted, StatePending, StateConfirmed, StateFailed}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]State{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
	if CanTransition("bogus", StatePending) {
		t.Fatalf("unknown states must not transition")
	}
}

func TestRecordTransitions(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Record{State: StateSubmitted}

	r, err := r.Acknowledged("0x01", at)
	if err != nil || r.State != StatePending || r.Hash != "0x01" {
		t.Fatalf("acknowledge: %+v %v", r, err)
	}
	if _, err := r.Acknowledged("0x02", at); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected second acknowledge to fail, got %v", err)
	}

	r, err = r.Observed(3, at.Add(time.Minute))
	if err != nil || r.Confirmations != 3 || r.LastPolledAt == nil {
		t.Fatalf("observe: %+v %v", r, err)
	}
	r, _ = r.Observed(1, at.Add(2*time.Minute))
	if r.Confirmations != 3 {
		t.Fatalf("confirmations must not decrease, got %d", r.Confirmations)
	}

	r, err = r.Confirmed(12, at.Add(3*time.Minute))
	if err != nil || r.State != StateConfirmed || r.TerminalAt == nil {
		t.Fatalf("confirm: %+v %v", r, err)
	}
	if _, err := r.Failed(ReasonTimeout, at); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal record to reject transition, got %v", err)
	}
	if _, err := r.Observed(13, at); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected terminal record to reject observe, got %v", err)
	}
}
