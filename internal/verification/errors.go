package verification

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies a failed backend call by what it says about the
// endpoint.
type ErrorCategory string

// Transient categories mean the endpoint is unhealthy: they count towards
// the circuit breaker and a later run may succeed. The others are answered
// promptly by a working endpoint and leave the breaker alone.
const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorProviderOutage ErrorCategory = "provider_outage"
	ErrorRateLimited    ErrorCategory = "rate_limited"

	ErrorBadData          ErrorCategory = "bad_data"
	ErrorContractMismatch ErrorCategory = "contract_mismatch"
	ErrorAuthentication   ErrorCategory = "authentication"
	ErrorInternal         ErrorCategory = "internal"
)

// Transient reports whether the category describes an unhealthy endpoint.
func (c ErrorCategory) Transient() bool {
	switch c {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited:
		return true
	default:
		return false
	}
}

// CallError is a failed verification call. The batch records it as status
// Error and moves on; it is never retried within the same run.
type CallError struct {
	Category  ErrorCategory
	BackendID string
	Message   string
	Err       error
}

// NewCallError creates a categorized call error.
func NewCallError(category ErrorCategory, backendID, message string, err error) *CallError {
	return &CallError{Category: category, BackendID: backendID, Message: message, Err: err}
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("backend %s [%s]: %s", e.BackendID, e.Category, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a *CallError in a transient category.
func IsTransient(err error) bool {
	return CategoryOf(err).Transient()
}

// CategoryOf extracts the category from err, defaulting to ErrorInternal.
func CategoryOf(err error) ErrorCategory {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrorInternal
}
