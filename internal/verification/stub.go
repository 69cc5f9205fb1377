package verification

import (
	"context"
	"time"

	"numcheck/pkg/domain"
)

// StubBackendID identifies the deterministic stub.
const StubBackendID = "stub"

// StubBackend simulates a provider: after a fixed latency, numbers ending in
// an even digit are on the service and odd ones are not.
type StubBackend struct {
	latency time.Duration
}

func NewStubBackend(latency time.Duration) *StubBackend {
	return &StubBackend{latency: latency}
}

func (b *StubBackend) ID() string {
	return StubBackendID
}

func (b *StubBackend) Lookup(ctx context.Context, number domain.CanonicalNumber) (domain.Status, error) {
	if b.latency > 0 {
		timer := time.NewTimer(b.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	digit, ok := number.LastDigit()
	if !ok {
		return "", NewCallError(ErrorBadData, StubBackendID, "number is not canonical", nil)
	}
	if digit%2 == 0 {
		return domain.StatusOnService, nil
	}
	return domain.StatusNotOnService, nil
}
