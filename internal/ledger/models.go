package ledger

import (
	"time"

	"numcheck/pkg/domain"
)

// Record is the latest verification outcome for one number.
// NextRetry is set iff Status is NotOnService; Attempts starts at 1 and grows
// by exactly one per update.
type Record struct {
	Status    domain.Status `json:"status"`
	LastCheck time.Time     `json:"last_check"`
	NextRetry *time.Time    `json:"next_retry,omitempty"`
	Attempts  int           `json:"attempts"`
}

// UserStats is the only state kept per session key.
type UserStats struct {
	LastCheck    time.Time `json:"last_check"`
	TotalChecked int       `json:"total_checked"`
}

// Snapshot is the persisted ledger document.
type Snapshot struct {
	CheckedNumbers map[domain.CanonicalNumber]Record `json:"checked_numbers"`
	UserData       map[domain.SessionKey]UserStats   `json:"user_data"`
}

// NewSnapshot returns an empty document with non-nil maps.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		CheckedNumbers: make(map[domain.CanonicalNumber]Record),
		UserData:       make(map[domain.SessionKey]UserStats),
	}
}

// Stats aggregates the ledger per status.
type Stats struct {
	Total        int `json:"total"`
	OnService    int `json:"on_service"`
	NotOnService int `json:"not_on_service"`
	Invalid      int `json:"invalid"`
	Error        int `json:"error"`
}

func (s *Stats) add(st domain.Status) {
	s.Total++
	switch st {
	case domain.StatusOnService:
		s.OnService++
	case domain.StatusNotOnService:
		s.NotOnService++
	case domain.StatusInvalid:
		s.Invalid++
	case domain.StatusError:
		s.Error++
	}
}
