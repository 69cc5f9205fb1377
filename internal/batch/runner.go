// Package batch drives sequential verification runs over lists of numbers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"numcheck/internal/events"
	"numcheck/internal/ledger"
	"numcheck/internal/platform/logger"
	"numcheck/internal/platform/metrics"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
)

// Defaults for the adjustable run constants.
const (
	DefaultProgressEvery = 5
	DefaultMinRetryHours = 1
	DefaultMaxRetryHours = 168
)

type Normalizer interface {
	Normalize(raw string) domain.CanonicalNumber
}

type Verifier interface {
	Check(ctx context.Context, number domain.CanonicalNumber) (domain.Status, error)
}

type Ledger interface {
	Upsert(ctx context.Context, number domain.CanonicalNumber, status domain.Status, retryHours int) (ledger.Record, error)
	RecordRun(ctx context.Context, key domain.SessionKey, total int)
	Flush(ctx context.Context) error
}

type Publisher interface {
	PublishRunCompleted(ctx context.Context, ev events.RunCompleted) error
}

// Runner processes one request at a time per call; concurrent calls from
// different sessions share the Verifier and Ledger.
type Runner struct {
	normalizer Normalizer
	verifier   Verifier
	ledger     Ledger
	publisher  Publisher

	progressEvery int
	minRetry      int
	maxRetry      int

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   func() time.Time
}

type Option func(*Runner)

// WithProgressEvery sets the progress cadence; n < 1 is ignored.
func WithProgressEvery(n int) Option {
	return func(r *Runner) {
		if n >= 1 {
			r.progressEvery = n
		}
	}
}

// WithRetryBounds sets the accepted retry-hours range.
func WithRetryBounds(minHours, maxHours int) Option {
	return func(r *Runner) {
		if minHours >= 1 && maxHours >= minHours {
			r.minRetry, r.maxRetry = minHours, maxHours
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(r *Runner) {
		if p != nil {
			r.publisher = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithClock sets the time source for run timestamps. It should be the
// ledger's clock so fallback check times match ledger records.
func WithClock(clock func() time.Time) Option {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

func New(normalizer Normalizer, verifier Verifier, store Ledger, opts ...Option) (*Runner, error) {
	if normalizer == nil {
		return nil, errors.New("normalizer is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if store == nil {
		return nil, errors.New("ledger is required")
	}
	r := &Runner{
		normalizer:    normalizer,
		verifier:      verifier,
		ledger:        store,
		publisher:     events.NopPublisher{},
		progressEvery: DefaultProgressEvery,
		minRetry:      DefaultMinRetryHours,
		maxRetry:      DefaultMaxRetryHours,
		logger:        logger.Discard(),
		tracer:        otel.Tracer("numcheck/internal/batch"),
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RetryBounds returns the accepted retry-hours range, inclusive.
func (r *Runner) RetryBounds() (minHours, maxHours int) {
	return r.minRetry, r.maxRetry
}

// Validate rejects requests that must not start.
func (r *Runner) Validate(req Request) error {
	if len(req.Numbers) == 0 {
		return dErrors.New(dErrors.CodeValidation, "no numbers to check")
	}
	if req.RetryHours < r.minRetry || req.RetryHours > r.maxRetry {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("retry hours must be between %d and %d", r.minRetry, r.maxRetry))
	}
	return nil
}

// Run checks every number in input order and returns one result per input.
//
// A failed verification call becomes StatusError and the run continues. If
// ctx is cancelled the run stops before the next call and returns a
// CodeCancelled error with no results; ledger updates already made stay.
func (r *Runner) Run(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	if err := r.Validate(req); err != nil {
		r.metrics.RecordBatchRun("rejected")
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "batch.run", trace.WithAttributes(
		attribute.Int("batch.size", len(req.Numbers)),
		attribute.Int("batch.retry_hours", req.RetryHours),
	))
	defer span.End()

	res := &Result{
		RunID:      domain.NewRunID(),
		Results:    make([]domain.CheckResult, 0, len(req.Numbers)),
		RetryHours: req.RetryHours,
		StartedAt:  r.clock(),
	}
	span.SetAttributes(attribute.String("batch.run_id", res.RunID.String()))
	log := r.logger.With("run_id", res.RunID.String(), "session", req.SessionKey.String())
	log.InfoContext(ctx, "batch run started", "numbers", len(req.Numbers), "retry_hours", req.RetryHours)
	start := time.Now()

	total := len(req.Numbers)
	for i, raw := range req.Numbers {
		if ctx.Err() != nil {
			return nil, r.cancelled(ctx, span, log, i)
		}

		item, err := r.checkOne(ctx, log, raw, req.RetryHours)
		if err != nil {
			return nil, r.cancelled(ctx, span, log, i)
		}
		res.Results = append(res.Results, item)
		res.Summary.add(item.Status)
		r.metrics.RecordBatchItem(item.Status.String())

		processed := i + 1
		if progress != nil && (processed%r.progressEvery == 0 || processed == total) {
			progress(Progress{
				Processed:    processed,
				Total:        total,
				Percent:      processed * 100 / total,
				OnService:    res.Summary.OnService,
				NotOnService: res.Summary.NotOnService,
			})
		}
	}

	res.FinishedAt = r.clock()
	r.ledger.RecordRun(ctx, req.SessionKey, total)
	if err := r.ledger.Flush(ctx); err != nil {
		log.WarnContext(ctx, "ledger flush after run failed", "error", err)
	}
	r.publish(ctx, log, req, res)

	r.metrics.RecordBatchRun("completed")
	r.metrics.ObserveBatchDuration(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("batch.on_service", res.Summary.OnService),
		attribute.Int("batch.not_on_service", res.Summary.NotOnService),
		attribute.Int("batch.errors", res.Summary.Error),
	)
	log.InfoContext(ctx, "batch run completed",
		"total", res.Summary.Total,
		"on_service", res.Summary.OnService,
		"not_on_service", res.Summary.NotOnService,
		"invalid", res.Summary.Invalid,
		"errors", res.Summary.Error,
	)
	return res, nil
}

// checkOne verifies and records a single input. It only returns an error
// when ctx ended during the call.
func (r *Runner) checkOne(ctx context.Context, log *slog.Logger, raw string, retryHours int) (domain.CheckResult, error) {
	number := r.normalizer.Normalize(raw)

	status, err := r.verifier.Check(ctx, number)
	if err != nil {
		if ctx.Err() != nil {
			return domain.CheckResult{}, ctx.Err()
		}
		log.WarnContext(ctx, "verification failed, recording error status", "number", number, "error", err)
		status = domain.StatusError
	}

	item := domain.CheckResult{Phone: number, Status: status}
	rec, err := r.ledger.Upsert(ctx, number, status, retryHours)
	if err != nil {
		log.ErrorContext(ctx, "ledger upsert failed", "number", number, "error", err)
		item.CheckTime = r.clock()
		if status == domain.StatusNotOnService {
			next := item.CheckTime.Add(time.Duration(retryHours) * time.Hour)
			item.NextRetry = &next
		}
		return item, nil
	}
	item.CheckTime = rec.LastCheck
	item.NextRetry = rec.NextRetry
	return item, nil
}

func (r *Runner) cancelled(ctx context.Context, span trace.Span, log *slog.Logger, processed int) error {
	r.metrics.RecordBatchRun("cancelled")
	span.SetStatus(codes.Error, "cancelled")
	log.InfoContext(ctx, "batch run cancelled", "processed", processed)
	return dErrors.Wrap(ctx.Err(), dErrors.CodeCancelled, "batch run cancelled")
}

func (r *Runner) publish(ctx context.Context, log *slog.Logger, req Request, res *Result) {
	ev := events.RunCompleted{
		EventID:      events.NewEventID(),
		RunID:        res.RunID,
		SessionKey:   req.SessionKey,
		Total:        res.Summary.Total,
		OnService:    res.Summary.OnService,
		NotOnService: res.Summary.NotOnService,
		Invalid:      res.Summary.Invalid,
		Error:        res.Summary.Error,
		RetryHours:   res.RetryHours,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	if err := r.publisher.PublishRunCompleted(ctx, ev); err != nil {
		log.WarnContext(ctx, "publishing run event failed", "error", err)
	}
}
