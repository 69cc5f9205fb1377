package verification

import (
	"context"
	"fmt"

	"numcheck/internal/platform/config"
	"numcheck/pkg/domain"
	"numcheck/pkg/platform/circuit"
)

// Backend answers whether a canonical number is registered on the
// messaging service. Implementations return StatusOnService or
// StatusNotOnService, or an error (preferably a *CallError).
type Backend interface {
	ID() string
	Lookup(ctx context.Context, number domain.CanonicalNumber) (domain.Status, error)
}

// NewBackend builds the backend selected by configuration.
func NewBackend(cfg config.Verification) (Backend, error) {
	switch cfg.Backend {
	case config.BackendStub, "":
		return NewStubBackend(cfg.StubLatency), nil
	case config.BackendNetwork:
		breaker := circuit.New("verification-network",
			circuit.WithFailureThreshold(cfg.BreakerFailures),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)
		return NewNetworkBackend(cfg.Endpoint,
			WithTimeout(cfg.Timeout),
			WithAPIKey(cfg.APIKey),
			WithBreaker(breaker),
		)
	default:
		return nil, fmt.Errorf("unknown verification backend %q", cfg.Backend)
	}
}
