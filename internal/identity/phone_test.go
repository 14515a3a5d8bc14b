package identity

import (
	"errors"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"+15550001111", "+15550001111"},
		{"+1 (555) 000-1111", "+15550001111"},
		{"0015550001111", "+15550001111"},
		{" +237.650.00.00.00 ", "+237650000000"},
	}
	for _, tc := range cases {
		got, err := Canonicalize(tc.raw)
		if err != nil {
			t.Fatalf("canonicalize %q: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("canonicalize %q: expected %s, got %s", tc.raw, tc.want, got)
		}
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	for _, raw := range []string{"", "5550001111", "+0555000111", "+1234567", "+1234567890123456", "+1555abc1111"} {
		if _, err := Canonicalize(raw); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("expected ErrInvalidPhone for %q, got %v", raw, err)
		}
	}
}
