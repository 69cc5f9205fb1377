package httptransport

import (
	"time"

	"numcheck/internal/batch"
	"numcheck/internal/filter"
	"numcheck/internal/ledger"
	"numcheck/internal/session"
	"numcheck/pkg/domain"
)

// TextRequest carries pasted text for /check and /numbers.
type TextRequest struct {
	Text string `json:"text"`
}

// RetryRequest answers the retry prompt. An empty input or "/skip" takes the
// default window.
type RetryRequest struct {
	Input string `json:"input"`
}

type FilterRequest struct {
	Filter string `json:"filter"`
}

// SessionResponse is the session view plus the key's usage statistics.
type SessionResponse struct {
	session.View
	User *ledger.UserStats `json:"user,omitempty"`
}

type RunResponse struct {
	RunID      domain.RunID         `json:"run_id"`
	Summary    batch.Summary        `json:"summary"`
	RetryHours int                  `json:"retry_hours"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Results    []domain.CheckResult `json:"results"`
}

func toRunResponse(res *batch.Result) RunResponse {
	return RunResponse{
		RunID:      res.RunID,
		Summary:    res.Summary,
		RetryHours: res.RetryHours,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Results:    res.Results,
	}
}

type ResultsResponse struct {
	Filter  filter.Spec          `json:"filter"`
	Label   string               `json:"label"`
	Count   int                  `json:"count"`
	Results []domain.CheckResult `json:"results"`
}

type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

type StatsResponse struct {
	Ledger ledger.Stats `json:"ledger"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
