// Package verification decides whether numbers are registered on the
// messaging service, through a pluggable Backend behind a rate-limited Client.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"numcheck/internal/platform/logger"
	"numcheck/internal/platform/metrics"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
)

// DefaultMinInterval is the default spacing between backend calls.
const DefaultMinInterval = 500 * time.Millisecond

// Client checks numbers against a Backend. It owns the rate limit: every
// call it issues, from any caller, is spaced by at least the minimum
// interval.
type Client struct {
	backend     Backend
	minInterval time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithMinInterval sets the minimum spacing between calls. Zero disables
// rate limiting.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates a Client over backend.
func New(backend Backend, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("verification backend is required")
	}
	c := &Client{
		backend:     backend,
		minInterval: DefaultMinInterval,
		logger:      logger.Discard(),
		tracer:      otel.Tracer("numcheck/internal/verification"),
	}
	for _, opt := range opts {
		opt(c)
	}

	limit := rate.Inf
	if c.minInterval > 0 {
		limit = rate.Every(c.minInterval)
	}
	c.limiter = rate.NewLimiter(limit, 1)
	return c, nil
}

// BackendID names the configured backend.
func (c *Client) BackendID() string {
	return c.backend.ID()
}

// MinInterval returns the enforced spacing between calls.
func (c *Client) MinInterval() time.Duration {
	return c.minInterval
}

// Check verifies one number.
//
// The invalid marker yields StatusInvalid without a call. A failed call
// yields StatusError and a CodeVerificationFailed error wrapping the
// *CallError. If ctx ends first, StatusError and ctx.Err() are returned.
func (c *Client) Check(ctx context.Context, number domain.CanonicalNumber) (domain.Status, error) {
	if !number.IsValid() {
		c.metrics.RecordCheck(string(domain.StatusInvalid))
		return domain.StatusInvalid, nil
	}

	ctx, span := c.tracer.Start(ctx, "verification.check",
		trace.WithAttributes(attribute.String("verification.backend", c.backend.ID())))
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.StatusError, ctxErr
		}
		// Wait fails early when the deadline cannot accommodate the delay.
		return domain.StatusError, dErrors.Wrap(err, dErrors.CodeTimeout, "rate limit wait exceeds deadline")
	}

	start := time.Now()
	status, err := c.backend.Lookup(ctx, number)
	c.metrics.ObserveCheckDuration(c.backend.ID(), time.Since(start).Seconds())

	if err == nil && !status.IsDefinitive() {
		err = NewCallError(ErrorBadData, c.backend.ID(), "backend returned non-definitive status "+status.String(), nil)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.StatusError, ctxErr
		}
		category := CategoryOf(err)
		c.metrics.RecordBackendError(c.backend.ID(), string(category))
		c.metrics.RecordCheck(string(domain.StatusError))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(category))
		c.logger.WarnContext(ctx, "verification call failed",
			"backend", c.backend.ID(),
			"category", category,
			"transient", category.Transient(),
			"error", err,
		)
		return domain.StatusError, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "verification call failed")
	}

	span.SetAttributes(attribute.String("verification.status", status.String()))
	c.metrics.RecordCheck(status.String())
	return status, nil
}
