package domain

import dErrors "numcheck/pkg/domain-errors"

// Status is the outcome of verifying one number.
//
// Invalid means normalization failed; Error means the verification call
// itself failed. OnService and NotOnService are definitive answers.
type Status string

const (
	StatusOnService    Status = "on_service"
	StatusNotOnService Status = "not_on_service"
	StatusInvalid      Status = "invalid"
	StatusError        Status = "error"
)

var validStatuses = map[Status]bool{
	StatusOnService:    true,
	StatusNotOnService: true,
	StatusInvalid:      true,
	StatusError:        true,
}

// ParseStatus validates a persisted or external status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown status: "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsDefinitive reports whether the status came from a successful call.
func (s Status) IsDefinitive() bool {
	return s == StatusOnService || s == StatusNotOnService
}

func (s Status) String() string {
	return string(s)
}

// AllStatuses lists statuses in display order.
func AllStatuses() []Status {
	return []Status{StatusOnService, StatusNotOnService, StatusInvalid, StatusError}
}
