package domain

import "time"

// CheckResult is the per-item output of a batch run. Results are kept in
// input order and are never deduplicated within a run.
type CheckResult struct {
	Phone     CanonicalNumber `json:"phone"`
	Status    Status          `json:"status"`
	CheckTime time.Time       `json:"check_time"`
	NextRetry *time.Time      `json:"next_retry,omitempty"`
}

// HasRetry reports whether a retry time is scheduled.
func (r CheckResult) HasRetry() bool {
	return r.NextRetry != nil
}
