// Package ledger is the global status ledger: the latest verification
// record per canonical number plus per-session usage statistics, kept in
// memory and persisted through a Persister.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"numcheck/internal/platform/logger"
	"numcheck/internal/platform/metrics"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
	"numcheck/pkg/platform/sentinel"
)

// Persister loads and saves whole ledger documents. Load returns
// sentinel.ErrNotFound when nothing was persisted yet and wraps
// sentinel.ErrCorrupt when a document exists but cannot be decoded. Save
// must be atomic: a failed or interrupted Save leaves the previous document.
type Persister interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Store is the single process-wide ledger shared by all sessions.
type Store struct {
	persister Persister
	policy    FlushPolicy
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time

	// mu guards the maps and the policy. flushMu orders flushes so a later
	// snapshot is never overwritten by an earlier one.
	mu      sync.Mutex
	records map[domain.CanonicalNumber]Record
	users   map[domain.SessionKey]UserStats
	closed  bool

	flushMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

func WithFlushPolicy(p FlushPolicy) Option {
	return func(s *Store) {
		if p != nil {
			s.policy = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock sets the time source stamped on each upsert and run. Defaults to
// time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates an empty Store. Call Load before serving traffic.
func New(persister Persister, opts ...Option) (*Store, error) {
	if persister == nil {
		return nil, errors.New("ledger persister is required")
	}
	s := &Store{
		persister: persister,
		policy:    NewEveryN(DefaultFlushEvery),
		logger:    logger.Discard(),
		clock:     time.Now,
		records:   make(map[domain.CanonicalNumber]Record),
		users:     make(map[domain.SessionKey]UserStats),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Load replaces the in-memory state with the persisted document. A missing
// document is an empty start; any other failure is a PersistenceError.
func (s *Store) Load(ctx context.Context) error {
	snap, err := s.persister.Load(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.logger.InfoContext(ctx, "no persisted ledger, starting empty")
		snap = NewSnapshot()
	} else if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "load ledger")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[domain.CanonicalNumber]Record, len(snap.CheckedNumbers))
	for k, v := range snap.CheckedNumbers {
		s.records[k] = v
	}
	s.users = make(map[domain.SessionKey]UserStats, len(snap.UserData))
	for k, v := range snap.UserData {
		s.users[k] = v
	}
	s.metrics.SetLedgerRecords(len(s.records))
	s.logger.InfoContext(ctx, "ledger loaded", "numbers", len(s.records), "sessions", len(s.users))
	return nil
}

// Get returns the record for number.
func (s *Store) Get(_ context.Context, number domain.CanonicalNumber) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[number]
	return rec, ok
}

// Upsert records a verification outcome and returns the new record.
// LastCheck is read from the store clock at the time of the call, so items
// of a long run carry their own check times. NextRetry is now+retryHours for NotOnService and nil otherwise; Attempts
// is the previous value plus one. When the flush policy fires, the ledger is
// flushed before returning; a flush failure is logged and left for the next
// scheduled flush.
func (s *Store) Upsert(ctx context.Context, number domain.CanonicalNumber, status domain.Status, retryHours int) (Record, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Record{}, dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodePersistence, "ledger is closed")
	}
	now := s.clock()
	prev := s.records[number]
	rec := Record{
		Status:    status,
		LastCheck: now,
		Attempts:  prev.Attempts + 1,
	}
	if status == domain.StatusNotOnService {
		next := now.Add(time.Duration(retryHours) * time.Hour)
		rec.NextRetry = &next
	}
	s.records[number] = rec
	due := s.policy.Observe()
	size := len(s.records)
	s.mu.Unlock()

	s.metrics.RecordUpsert(size)
	if due {
		if err := s.Flush(ctx); err != nil {
			s.logger.WarnContext(ctx, "scheduled ledger flush failed, will retry on next flush", "error", err)
		}
	}
	return rec, nil
}

// RecordRun stores the per-session statistic for a finished run.
func (s *Store) RecordRun(_ context.Context, key domain.SessionKey, total int) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[key] = UserStats{LastCheck: s.clock(), TotalChecked: total}
}

// UserStats returns the statistic for one session key.
func (s *Store) UserStats(_ context.Context, key domain.SessionKey) (UserStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[key]
	return u, ok
}

// Stats aggregates the whole ledger by status.
func (s *Store) Stats(_ context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, rec := range s.records {
		st.add(rec.Status)
	}
	return st
}

// Len is the number of tracked numbers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *Snapshot {
	snap := &Snapshot{
		CheckedNumbers: make(map[domain.CanonicalNumber]Record, len(s.records)),
		UserData:       make(map[domain.SessionKey]UserStats, len(s.users)),
	}
	for k, v := range s.records {
		if v.NextRetry != nil {
			next := *v.NextRetry
			v.NextRetry = &next
		}
		snap.CheckedNumbers[k] = v
	}
	for k, v := range s.users {
		snap.UserData[k] = v
	}
	return snap
}

// Flush persists the full ledger. The snapshot is taken under the same lock
// as upserts, so it never contains a half-applied update.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	snap := s.Snapshot()
	start := time.Now()
	if err := s.persister.Save(ctx, snap); err != nil {
		s.metrics.RecordFlush("error", time.Since(start).Seconds())
		return dErrors.Wrap(err, dErrors.CodePersistence, "flush ledger")
	}
	s.metrics.RecordFlush("ok", time.Since(start).Seconds())
	s.logger.DebugContext(ctx, "ledger flushed", "numbers", len(snap.CheckedNumbers))
	return nil
}

// FlushEvery flushes on a fixed interval until ctx is done.
func (s *Store) FlushEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.WarnContext(ctx, "periodic ledger flush failed", "error", err)
			}
		}
	}
}

// Close performs the shutdown flush and rejects further upserts. Calling
// Close twice is a no-op.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.Flush(ctx); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "ledger closed")
	return nil
}
