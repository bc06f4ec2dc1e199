package phone

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// CountryCode is the calling code every standardized number carries.
	CountryCode = "91"

	nationalLength = 10
)

// ErrInvalid is returned for any input that cannot be standardized.
var ErrInvalid = errors.New("invalid phone number")

// Identity is a phone number in both its submitted and canonical form.
// Standardized is the key used for cache entries, user lookup and
// messaging addresses.
type Identity struct {
	Original     string `json:"original"`
	Standardized string `json:"standardized"`
}

// Normalize strips formatting from raw and returns the canonical
// +91XXXXXXXXXX form. Accepted shapes are a bare 10-digit national number
// or the same number prefixed with 91 or +91. The national number must
// start with 6, 7, 8 or 9.
func Normalize(raw string) (Identity, error) {
	digits := stripNonDigits(raw)

	var national string
	switch {
	case len(digits) == nationalLength:
		national = digits
	case len(digits) == len(CountryCode)+nationalLength && strings.HasPrefix(digits, CountryCode):
		national = digits[len(CountryCode):]
	default:
		return Identity{}, fmt.Errorf("%q: expected 10 digits with optional +%s prefix: %w", raw, CountryCode, ErrInvalid)
	}

	switch national[0] {
	case '6', '7', '8', '9':
	default:
		return Identity{}, fmt.Errorf("%q: mobile numbers start with 6-9: %w", raw, ErrInvalid)
	}

	return Identity{
		Original:     raw,
		Standardized: "+" + CountryCode + national,
	}, nil
}

// FromAddress normalizes the user part of a messaging address such as
// 919876543210@s.whatsapp.net. Device suffixes (":12") are ignored.
func FromAddress(addr string) (Identity, error) {
	user, _, _ := strings.Cut(addr, "@")
	user, _, _ = strings.Cut(user, ":")
	if user == "" {
		return Identity{}, fmt.Errorf("empty address user: %w", ErrInvalid)
	}
	return Normalize(user)
}

// AddressUser returns the standardized number without its leading plus,
// which is the user part of the identity's messaging address.
func (id Identity) AddressUser() string {
	return strings.TrimPrefix(id.Standardized, "+")
}

func (id Identity) String() string { return id.Standardized }

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
