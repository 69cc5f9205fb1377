package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"numcheck/pkg/domain"
	"numcheck/pkg/platform/circuit"
	"numcheck/pkg/platform/sentinel"
)

// NetworkBackendID identifies the HTTP backend.
const NetworkBackendID = "network"

const maxResponseBytes = 64 << 10

const responseSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["registered"],
	"properties": {
		"number": {"type": "string"},
		"registered": {"type": "boolean"}
	}
}`

type lookupRequest struct {
	Number string `json:"number"`
}

type lookupResponse struct {
	Number     string `json:"number"`
	Registered bool   `json:"registered"`
}

// NetworkBackend asks an HTTP endpoint whether a number is registered.
type NetworkBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
	schema   *jsonschema.Schema
	breaker  *circuit.Breaker
}

// NetworkOption configures a NetworkBackend.
type NetworkOption func(*NetworkBackend)

// WithHTTPClient replaces the HTTP client (its Timeout is kept as is).
func WithHTTPClient(c *http.Client) NetworkOption {
	return func(b *NetworkBackend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithTimeout bounds every lookup.
func WithTimeout(d time.Duration) NetworkOption {
	return func(b *NetworkBackend) {
		if d > 0 {
			b.client.Timeout = d
		}
	}
}

func WithAPIKey(key string) NetworkOption {
	return func(b *NetworkBackend) {
		b.apiKey = key
	}
}

// WithBreaker guards the endpoint with a circuit breaker.
func WithBreaker(br *circuit.Breaker) NetworkOption {
	return func(b *NetworkBackend) {
		b.breaker = br
	}
}

// NewNetworkBackend validates the endpoint and compiles the response schema.
func NewNetworkBackend(endpoint string, opts ...NetworkOption) (*NetworkBackend, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("verification endpoint %q must be an absolute http(s) URL", endpoint)
	}
	schema, err := jsonschema.CompileString("verification-response.json", responseSchema)
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	b := &NetworkBackend{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		schema:   schema,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.breaker == nil {
		b.breaker = circuit.New("verification-network")
	}
	return b, nil
}

func (b *NetworkBackend) ID() string {
	return NetworkBackendID
}

// Lookup performs one HTTP call. Non-2xx responses, timeouts, transport
// failures and payloads that fail the schema are returned as *CallError.
// Only transient categories count as breaker failures. Caller cancellation
// is returned as the bare context error.
func (b *NetworkBackend) Lookup(ctx context.Context, number domain.CanonicalNumber) (domain.Status, error) {
	if !b.breaker.Allow() {
		return "", NewCallError(ErrorProviderOutage, NetworkBackendID, "circuit open", sentinel.ErrUnavailable)
	}

	status, err := b.lookup(ctx, number)
	switch {
	case err != nil && ctx.Err() != nil:
		return "", ctx.Err()
	case IsTransient(err):
		b.breaker.RecordFailure()
	default:
		// The endpoint answered, even if the answer was unusable.
		b.breaker.RecordSuccess()
	}
	return status, err
}

func (b *NetworkBackend) lookup(ctx context.Context, number domain.CanonicalNumber) (domain.Status, error) {
	body, err := json.Marshal(lookupRequest{Number: number.String()})
	if err != nil {
		return "", NewCallError(ErrorInternal, NetworkBackendID, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", NewCallError(ErrorInternal, NetworkBackendID, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", NewCallError(ErrorTimeout, NetworkBackendID, "request timed out", err)
		}
		return "", NewCallError(ErrorProviderOutage, NetworkBackendID, "request failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", NewCallError(ErrorBadData, NetworkBackendID, "read response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", NewCallError(ErrorAuthentication, NetworkBackendID, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", NewCallError(ErrorRateLimited, NetworkBackendID, "status 429", nil)
	case resp.StatusCode >= 500:
		return "", NewCallError(ErrorProviderOutage, NetworkBackendID, fmt.Sprintf("status %d", resp.StatusCode), nil)
	default:
		return "", NewCallError(ErrorBadData, NetworkBackendID, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", NewCallError(ErrorBadData, NetworkBackendID, "malformed JSON", err)
	}
	if err := b.schema.Validate(doc); err != nil {
		return "", NewCallError(ErrorContractMismatch, NetworkBackendID, "response does not match schema", err)
	}

	var parsed lookupResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", NewCallError(ErrorBadData, NetworkBackendID, "decode response", err)
	}
	if parsed.Registered {
		return domain.StatusOnService, nil
	}
	return domain.StatusNotOnService, nil
}
