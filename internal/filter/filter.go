// Package filter selects subsets of check results for display and export.
//
// RetryDue and both combinators keep the literal comparison NextRetry > now,
// so they select numbers whose retry window has not elapsed yet.
package filter

import (
	"time"

	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
)

// Kind is the simple predicate of a Spec.
type Kind string

const (
	KindAll      Kind = "all"
	KindOn       Kind = "on"
	KindOff      Kind = "off"
	KindRetryDue Kind = "retry"
	KindCombo    Kind = "combo"
)

// Operator joins the combinator pair NotOnService / RetryNotExpired.
type Operator string

const (
	OpAnd Operator = "and"
	OpOr  Operator = "or"
)

// Spec is either a simple predicate or a combinator. The zero value selects
// everything.
type Spec struct {
	Kind     Kind     `json:"kind"`
	Operator Operator `json:"operator,omitempty"`
}

var (
	All      = Spec{Kind: KindAll}
	On       = Spec{Kind: KindOn}
	Off      = Spec{Kind: KindOff}
	RetryDue = Spec{Kind: KindRetryDue}
	BothAnd  = Spec{Kind: KindCombo, Operator: OpAnd}
	BothOr   = Spec{Kind: KindCombo, Operator: OpOr}
)

var byTag = map[string]Spec{
	"":         All,
	"all":      All,
	"on":       On,
	"off":      Off,
	"retry":    RetryDue,
	"both_and": BothAnd,
	"both_or":  BothOr,
}

// Parse maps a filter tag onto a Spec.
func Parse(tag string) (Spec, error) {
	spec, ok := byTag[tag]
	if !ok {
		return Spec{}, dErrors.New(dErrors.CodeValidation, "unknown filter: "+tag)
	}
	return spec, nil
}

func (s Spec) isAll() bool {
	return s.Kind == "" || s.Kind == KindAll
}

// Validate rejects combinators without a known operator and unknown kinds.
func (s Spec) Validate() error {
	switch s.Kind {
	case "", KindAll, KindOn, KindOff, KindRetryDue:
		return nil
	case KindCombo:
		if s.Operator == OpAnd || s.Operator == OpOr {
			return nil
		}
		return dErrors.New(dErrors.CodeValidation, "combinator filter needs operator and or or")
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown filter kind: "+string(s.Kind))
	}
}

// Label is the tag used in export filenames.
func (s Spec) Label() string {
	switch {
	case s.isAll():
		return "all"
	case s.Kind == KindCombo:
		return "both_" + string(s.Operator)
	default:
		return string(s.Kind)
	}
}

// Describe is a short human-readable description.
func (s Spec) Describe() string {
	switch s.Kind {
	case KindOn:
		return "On service"
	case KindOff:
		return "Not on service"
	case KindRetryDue:
		return "Retry window open"
	case KindCombo:
		if s.Operator == OpAnd {
			return "Not on service AND retry not expired"
		}
		return "Not on service OR retry not expired"
	default:
		return "All results"
	}
}

// Match evaluates the spec against one result.
func (s Spec) Match(r domain.CheckResult, now time.Time) bool {
	switch s.Kind {
	case KindOn:
		return r.Status == domain.StatusOnService
	case KindOff:
		return r.Status == domain.StatusNotOnService
	case KindRetryDue:
		return r.NextRetry != nil && r.NextRetry.After(now)
	case KindCombo:
		notOn := r.Status == domain.StatusNotOnService
		retryNotExpired := r.NextRetry == nil || r.NextRetry.After(now)
		if s.Operator == OpAnd {
			return notOn && retryNotExpired
		}
		return notOn || retryNotExpired
	default:
		return true
	}
}

// Apply returns the matching results in input order. Duplicates are kept.
// An empty result is "no matches", not an error.
func Apply(results []domain.CheckResult, spec Spec, now time.Time) []domain.CheckResult {
	if spec.isAll() {
		return results
	}
	out := make([]domain.CheckResult, 0, len(results))
	for _, r := range results {
		if spec.Match(r, now) {
			out = append(out, r)
		}
	}
	return out
}
