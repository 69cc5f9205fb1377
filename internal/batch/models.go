package batch

import (
	"time"

	"numcheck/pkg/domain"
)

// Request is one batch run. Numbers are raw, unnormalized strings.
type Request struct {
	SessionKey domain.SessionKey
	Numbers    []string
	RetryHours int
}

// Progress is reported every N processed items and after the last one.
type Progress struct {
	Processed    int `json:"processed"`
	Total        int `json:"total"`
	Percent      int `json:"percent"`
	OnService    int `json:"on_service"`
	NotOnService int `json:"not_on_service"`
}

// ProgressFunc receives progress snapshots on the running goroutine. It
// must not block for long: the next verification call waits for it.
type ProgressFunc func(Progress)

// Summary counts results per status.
type Summary struct {
	Total        int `json:"total"`
	OnService    int `json:"on_service"`
	NotOnService int `json:"not_on_service"`
	Invalid      int `json:"invalid"`
	Error        int `json:"error"`
}

func (s *Summary) add(st domain.Status) {
	s.Total++
	switch st {
	case domain.StatusOnService:
		s.OnService++
	case domain.StatusNotOnService:
		s.NotOnService++
	case domain.StatusInvalid:
		s.Invalid++
	default:
		s.Error++
	}
}

// Result is the outcome of a completed run.
type Result struct {
	RunID      domain.RunID         `json:"run_id"`
	Results    []domain.CheckResult `json:"results"`
	Summary    Summary              `json:"summary"`
	RetryHours int                  `json:"retry_hours"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}
