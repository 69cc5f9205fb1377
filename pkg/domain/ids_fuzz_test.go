//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseRunID checks that parsing never panics and accepted ids round-trip.
func FuzzParseRunID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseRunID(input)
		if err != nil {
			return
		}
		roundTrip, err := ParseRunID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
	})
}

// FuzzParseSessionKey checks that accepted keys are printable UTF-8.
func FuzzParseSessionKey(f *testing.F) {
	f.Add("123456789")
	f.Add("")
	f.Add("a b")
	f.Add(string([]byte{0xff}))

	f.Fuzz(func(t *testing.T, input string) {
		key, err := ParseSessionKey(input)
		if err != nil {
			return
		}
		if !utf8.ValidString(string(key)) {
			t.Error("non-UTF8 key was accepted")
		}
		if len(key) == 0 || len(key) > MaxSessionKeyLength {
			t.Errorf("key length %d out of bounds", len(key))
		}
	})
}
