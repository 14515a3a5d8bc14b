package identity

import (
	"fmt"
	"strings"
)

// Canonicalize returns the E.164 form of a phone number. Spaces, dashes, dots
// and parentheses are ignored and an international 00 prefix is accepted.
func Canonicalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		}
		b.WriteRune(r)
	}
	s := b.String()
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		return "", fmt.Errorf("%w: %q must include a country code", ErrInvalidPhone, raw)
	}
	digits := s[1:]
	if len(digits) < 8 || len(digits) > 15 || digits[0] == '0' {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
		}
	}
	return s, nil
}
