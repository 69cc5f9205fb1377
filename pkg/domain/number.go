package domain

// CanonicalNumber is a normalized phone number: "+" followed only by digits,
// or the InvalidNumber marker. Only the phone normalizer produces values.
type CanonicalNumber string

// InvalidNumber marks input that could not be normalized.
const InvalidNumber CanonicalNumber = "invalid"

func (n CanonicalNumber) String() string {
	return string(n)
}

// IsValid reports whether n is a real number rather than the invalid marker.
func (n CanonicalNumber) IsValid() bool {
	if len(n) < 2 || n[0] != '+' {
		return false
	}
	for i := 1; i < len(n); i++ {
		if n[i] < '0' || n[i] > '9' {
			return false
		}
	}
	return true
}

// LastDigit returns the final digit of a valid number.
func (n CanonicalNumber) LastDigit() (int, bool) {
	if !n.IsValid() {
		return 0, false
	}
	return int(n[len(n)-1] - '0'), true
}
