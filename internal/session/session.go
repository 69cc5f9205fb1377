// Package session models the per-user conversation as a finite state
// machine: Idle -> AwaitingNumbers -> AwaitingRetryConfig -> Running -> Idle.
// One session runs at most one batch at a time; different sessions run
// concurrently.
package session

import (
	"time"

	"numcheck/internal/batch"
	"numcheck/internal/filter"
	"numcheck/pkg/domain"
)

// State is a session FSM state.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingNumbers     State = "awaiting_numbers"
	StateAwaitingRetryConfig State = "awaiting_retry_config"
	StateRunning             State = "running"
)

// SkipToken accepts the default retry window.
const SkipToken = "/skip"

// DefaultRetryHours applies when the retry prompt is skipped.
const DefaultRetryHours = 24

type session struct {
	state    State
	pending  []string
	progress *batch.Progress
	last     *batch.Result
	filter   filter.Spec
	cancel   func()
	updated  time.Time
}

// View is a read-only snapshot of one session.
type View struct {
	Key        domain.SessionKey `json:"key"`
	State      State             `json:"state"`
	Pending    int               `json:"pending"`
	Progress   *batch.Progress   `json:"progress,omitempty"`
	Filter     filter.Spec       `json:"filter"`
	LastRun    *batch.Summary    `json:"last_run,omitempty"`
	LastRunID  string            `json:"last_run_id,omitempty"`
	RetryHours int               `json:"retry_hours,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (s *session) view(key domain.SessionKey) View {
	v := View{
		Key:       key,
		State:     s.state,
		Pending:   len(s.pending),
		Filter:    s.filter,
		UpdatedAt: s.updated,
	}
	if s.progress != nil {
		p := *s.progress
		v.Progress = &p
	}
	if s.last != nil {
		sum := s.last.Summary
		v.LastRun = &sum
		v.LastRunID = s.last.RunID.String()
		v.RetryHours = s.last.RetryHours
	}
	return v
}
