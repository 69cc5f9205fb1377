// Package events publishes run lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"numcheck/pkg/domain"
)

// TypeRunCompleted is the event type header of RunCompleted messages.
const TypeRunCompleted = "numcheck.run.completed"

// RunCompleted is emitted once per finished batch run. Cancelled runs emit
// nothing.
type RunCompleted struct {
	EventID      string            `json:"event_id"`
	RunID        domain.RunID      `json:"run_id"`
	SessionKey   domain.SessionKey `json:"session_key,omitempty"`
	Total        int               `json:"total"`
	OnService    int               `json:"on_service"`
	NotOnService int               `json:"not_on_service"`
	Invalid      int               `json:"invalid"`
	Error        int               `json:"error"`
	RetryHours   int               `json:"retry_hours"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// NewEventID returns a fresh event identifier.
func NewEventID() string {
	return uuid.NewString()
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, ev RunCompleted) error
	Close()
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishRunCompleted(context.Context, RunCompleted) error { return nil }
func (NopPublisher) Close()                                                  {}
