// Package phone turns raw user input into canonical phone numbers.
package phone

import (
	"strings"

	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
)

// Default numbering region: Nigeria.
const (
	DefaultCountryCode = "234"
	DefaultTrunkPrefix = "0"
)

// Normalizer canonicalizes numbers for one numbering region.
type Normalizer struct {
	countryCode string
	trunkPrefix string
}

// NewNormalizer builds a Normalizer. countryCode may carry a leading "+";
// both values must otherwise be digits. An empty trunkPrefix disables the
// trunk rule.
func NewNormalizer(countryCode, trunkPrefix string) (*Normalizer, error) {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	trunkPrefix = strings.TrimSpace(trunkPrefix)
	if countryCode == "" || !allDigits(countryCode) {
		return nil, dErrors.New(dErrors.CodeValidation, "country code must be digits")
	}
	if !allDigits(trunkPrefix) {
		return nil, dErrors.New(dErrors.CodeValidation, "trunk prefix must be digits")
	}
	return &Normalizer{countryCode: countryCode, trunkPrefix: trunkPrefix}, nil
}

// Normalize returns the canonical form of raw, or domain.InvalidNumber when
// nothing dialable is left. Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(raw string) domain.CanonicalNumber {
	s := strings.TrimSpace(raw)
	switch {
	case n.trunkPrefix != "" && strings.HasPrefix(s, n.trunkPrefix):
		s = "+" + n.countryCode + s[len(n.trunkPrefix):]
	case strings.HasPrefix(s, n.countryCode):
		s = "+" + s
	case !strings.HasPrefix(s, "+"):
		s = "+" + s
	}

	// s starts with "+" here; any later "+" is noise.
	var b strings.Builder
	b.Grow(len(s))
	b.WriteByte('+')
	digits := 0
	for i := 1; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
			digits++
		}
	}
	if digits == 0 {
		return domain.InvalidNumber
	}
	return domain.CanonicalNumber(b.String())
}

// NormalizeAll maps Normalize over raw, keeping order and duplicates.
func (n *Normalizer) NormalizeAll(raw []string) []domain.CanonicalNumber {
	out := make([]domain.CanonicalNumber, len(raw))
	for i, r := range raw {
		out[i] = n.Normalize(r)
	}
	return out
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
