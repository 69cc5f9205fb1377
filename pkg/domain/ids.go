package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "numcheck/pkg/domain-errors"
)

// RunID identifies one batch run.
type RunID uuid.UUID

// NewRunID returns a fresh random RunID.
func NewRunID() RunID {
	return RunID(uuid.New())
}

// ParseRunID validates and returns a RunID. Nil UUIDs are rejected.
func ParseRunID(s string) (RunID, error) {
	if s == "" {
		return RunID{}, dErrors.New(dErrors.CodeInvalidInput, "run id cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return RunID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid run id")
	}
	if parsed == uuid.Nil {
		return RunID{}, dErrors.New(dErrors.CodeInvalidInput, "run id cannot be nil")
	}
	return RunID(parsed), nil
}

func (id RunID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether the id is the zero value.
func (id RunID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id RunID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *RunID) UnmarshalText(b []byte) error {
	parsed, err := ParseRunID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MaxSessionKeyLength bounds keys supplied by the transport.
const MaxSessionKeyLength = 128

// SessionKey is the opaque key a transport uses for a user session. It only
// tags usage statistics and session state; it carries no identity semantics.
type SessionKey string

// ParseSessionKey validates a key at the transport boundary.
//
// Errors: CodeInvalidInput when the key is empty, too long, not UTF-8, or
// contains whitespace or control characters.
func ParseSessionKey(s string) (SessionKey, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session key cannot be empty")
	}
	if len(s) > MaxSessionKeyLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session key too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "session key must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "session key contains illegal characters")
		}
	}
	return SessionKey(s), nil
}

func (k SessionKey) String() string {
	return string(k)
}
