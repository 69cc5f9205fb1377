package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"numcheck/internal/batch"
	"numcheck/internal/export"
	"numcheck/internal/filter"
	"numcheck/internal/phone"
	"numcheck/internal/platform/logger"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
	"numcheck/pkg/requestcontext"
)

type Runner interface {
	Run(ctx context.Context, req batch.Request, progress batch.ProgressFunc) (*batch.Result, error)
	Validate(req batch.Request) error
}

type Exporter interface {
	Export(ctx context.Context, results []domain.CheckResult, label string, format export.Format) (*export.Artifact, error)
}

// Manager owns every session's state.
type Manager struct {
	runner       Runner
	exporter     Exporter
	defaultRetry int
	logger       *slog.Logger

	mu       sync.Mutex
	sessions map[domain.SessionKey]*session
}

type Option func(*Manager)

func WithDefaultRetryHours(h int) Option {
	return func(m *Manager) {
		if h > 0 {
			m.defaultRetry = h
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(runner Runner, exporter Exporter, opts ...Option) (*Manager, error) {
	if runner == nil {
		return nil, errors.New("batch runner is required")
	}
	if exporter == nil {
		return nil, errors.New("exporter is required")
	}
	m := &Manager{
		runner:       runner,
		exporter:     exporter,
		defaultRetry: DefaultRetryHours,
		logger:       logger.Discard(),
		sessions:     make(map[domain.SessionKey]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// get returns the session for key, creating it Idle. Caller holds mu.
func (m *Manager) get(key domain.SessionKey) *session {
	s, ok := m.sessions[key]
	if !ok {
		s = &session{state: StateIdle, filter: filter.All}
		m.sessions[key] = s
	}
	return s
}

func errRunning() error {
	return dErrors.New(dErrors.CodeInvalidState, "a check is already running for this session")
}

// Start begins a check. Numbers in text skip straight to the retry prompt;
// otherwise the session waits for numbers.
func (m *Manager) Start(ctx context.Context, key domain.SessionKey, text string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(key)
	if s.state == StateRunning {
		return s.view(key), errRunning()
	}
	s.pending = phone.ExtractCandidates(text)
	s.progress = nil
	if len(s.pending) > 0 {
		s.state = StateAwaitingRetryConfig
	} else {
		s.state = StateAwaitingNumbers
	}
	s.updated = requestcontext.Now(ctx)
	m.logger.DebugContext(ctx, "session started", "session", key.String(), "state", s.state, "pending", len(s.pending))
	return s.view(key), nil
}

// SubmitNumbers sets the numbers of the next run from pasted text.
func (m *Manager) SubmitNumbers(ctx context.Context, key domain.SessionKey, text string) (View, error) {
	return m.submit(ctx, key, phone.ExtractCandidates(text))
}

// SubmitFile sets the numbers of the next run from an uploaded .txt or .csv
// file.
func (m *Manager) SubmitFile(ctx context.Context, key domain.SessionKey, filename string, r io.Reader) (View, error) {
	kind, err := phone.KindFromFilename(filename)
	if err != nil {
		return View{}, err
	}
	candidates, err := phone.ReadCandidates(r, kind)
	if err != nil {
		return View{}, err
	}
	return m.submit(ctx, key, candidates)
}

func (m *Manager) submit(ctx context.Context, key domain.SessionKey, candidates []string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.get(key)
	if s.state == StateRunning {
		return s.view(key), errRunning()
	}
	if len(candidates) == 0 {
		return s.view(key), dErrors.New(dErrors.CodeValidation, "no phone numbers found")
	}
	s.pending = candidates
	s.progress = nil
	s.state = StateAwaitingRetryConfig
	s.updated = requestcontext.Now(ctx)
	return s.view(key), nil
}

// ParseRetryHours reads the retry prompt answer. Empty input and /skip mean
// the default.
func ParseRetryHours(input string, defaultHours int) (int, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.EqualFold(input, SkipToken) {
		return defaultHours, nil
	}
	h, err := strconv.Atoi(input)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("retry hours must be a whole number, got %q", input))
	}
	return h, nil
}

// SubmitRetry answers the retry prompt and runs the batch on the calling
// goroutine. The session is Running until the batch returns; Cancel from
// another goroutine stops it. Invalid retry input leaves the session
// waiting for a valid answer.
func (m *Manager) SubmitRetry(ctx context.Context, key domain.SessionKey, input string, progress batch.ProgressFunc) (*batch.Result, error) {
	m.mu.Lock()
	s := m.get(key)
	switch s.state {
	case StateRunning:
		m.mu.Unlock()
		return nil, errRunning()
	case StateAwaitingRetryConfig:
	default:
		m.mu.Unlock()
		return nil, dErrors.New(dErrors.CodeInvalidState, "no numbers are waiting for a retry window")
	}

	hours, err := ParseRetryHours(input, m.defaultRetry)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	req := batch.Request{SessionKey: key, Numbers: s.pending, RetryHours: hours}
	if err := m.runner.Validate(req); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.state = StateRunning
	s.cancel = cancel
	s.progress = &batch.Progress{Total: len(req.Numbers)}
	s.updated = requestcontext.Now(ctx)
	m.mu.Unlock()

	res, err := m.runner.Run(runCtx, req, func(p batch.Progress) {
		m.mu.Lock()
		s.progress = &p
		m.mu.Unlock()
		if progress != nil {
			progress(p)
		}
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	s.state = StateIdle
	s.pending = nil
	s.cancel = nil
	s.updated = requestcontext.Now(ctx)
	if err != nil {
		s.progress = nil
		m.logger.InfoContext(ctx, "session run ended without results", "session", key.String(), "error", err)
		return nil, err
	}
	s.last = res
	return res, nil
}

// Cancel aborts whatever the session is doing. It reports whether there was
// anything to cancel.
func (m *Manager) Cancel(ctx context.Context, key domain.SessionKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return false
	}
	switch s.state {
	case StateRunning:
		if s.cancel != nil {
			s.cancel()
		}
		m.logger.InfoContext(ctx, "session run cancel requested", "session", key.String())
		return true
	case StateAwaitingNumbers, StateAwaitingRetryConfig:
		s.state = StateIdle
		s.pending = nil
		s.updated = requestcontext.Now(ctx)
		return true
	default:
		return false
	}
}

// SetFilter stores the filter used by filtered results and exports.
func (m *Manager) SetFilter(ctx context.Context, key domain.SessionKey, spec filter.Spec) (View, error) {
	if err := spec.Validate(); err != nil {
		return View{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(key)
	s.filter = spec
	s.updated = requestcontext.Now(ctx)
	return s.view(key), nil
}

// Results returns the last run's results, filtered by the session filter
// unless all is set.
func (m *Manager) Results(ctx context.Context, key domain.SessionKey, all bool) ([]domain.CheckResult, filter.Spec, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if !ok || s.last == nil {
		m.mu.Unlock()
		return nil, filter.Spec{}, dErrors.New(dErrors.CodeNotFound, "no results yet, run a check first")
	}
	results := s.last.Results
	spec := s.filter
	m.mu.Unlock()

	if all {
		spec = filter.All
	}
	return filter.Apply(results, spec, requestcontext.Now(ctx)), spec, nil
}

// Export renders the last run's results, filtered unless all is set.
func (m *Manager) Export(ctx context.Context, key domain.SessionKey, all bool, format export.Format) (*export.Artifact, error) {
	results, spec, err := m.Results(ctx, key, all)
	if err != nil {
		return nil, err
	}
	return m.exporter.Export(ctx, results, spec.Label(), format)
}

// View returns the session snapshot; unknown keys are Idle.
func (m *Manager) View(key domain.SessionKey) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s.view(key)
	}
	return View{Key: key, State: StateIdle, Filter: filter.All}
}

// Reset forgets an idle session. Running sessions are kept.
func (m *Manager) Reset(key domain.SessionKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok || s.state == StateRunning {
		return false
	}
	delete(m.sessions, key)
	return true
}
