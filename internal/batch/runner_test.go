package batch_test

//go:generate mockgen -source=runner.go -destination=mocks/mocks.go -package=mocks Verifier,Ledger,Publisher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"numcheck/internal/batch"
	"numcheck/internal/batch/mocks"
	"numcheck/internal/events"
	"numcheck/internal/ledger"
	"numcheck/internal/phone"
	"numcheck/internal/platform/metrics"
	"numcheck/internal/verification"
	"numcheck/pkg/domain"
	dErrors "numcheck/pkg/domain-errors"
	"numcheck/pkg/requestcontext"
)

type RunnerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	normalizer *phone.Normalizer
	client     *verification.Client
	store      *ledger.Store
	now        time.Time
	ctx        context.Context
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	n, err := phone.NewNormalizer(phone.DefaultCountryCode, phone.DefaultTrunkPrefix)
	s.Require().NoError(err)
	s.normalizer = n

	client, err := verification.New(verification.NewStubBackend(0), verification.WithMinInterval(0))
	s.Require().NoError(err)
	s.client = client

	s.now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store, err := ledger.New(ledger.NewFileStore(filepath.Join(s.T().TempDir(), "data.json")),
		ledger.WithFlushPolicy(ledger.Never{}),
		ledger.WithClock(s.clock),
	)
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()
}

func (s *RunnerSuite) clock() time.Time { return s.now }

func (s *RunnerSuite) newRunner(v batch.Verifier, l batch.Ledger, opts ...batch.Option) *batch.Runner {
	opts = append([]batch.Option{batch.WithClock(s.clock)}, opts...)
	r, err := batch.New(s.normalizer, v, l, opts...)
	s.Require().NoError(err)
	return r
}

func numbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("0803%07d", i)
	}
	return out
}

func (s *RunnerSuite) TestNewRequiresDependencies() {
	_, err := batch.New(nil, s.client, s.store)
	s.Error(err)
	_, err = batch.New(s.normalizer, nil, s.store)
	s.Error(err)
	_, err = batch.New(s.normalizer, s.client, nil)
	s.Error(err)
}

func (s *RunnerSuite) TestPastedPairOfNumbers() {
	runner := s.newRunner(s.client, s.store)
	input := phone.ExtractCandidates("+2348012345678, 08023456789")

	res, err := runner.Run(s.ctx, batch.Request{SessionKey: "tg:1", Numbers: input, RetryHours: 24}, nil)
	s.Require().NoError(err)
	s.Require().Len(res.Results, 2)

	first, second := res.Results[0], res.Results[1]
	s.Equal(domain.CanonicalNumber("+2348012345678"), first.Phone)
	s.Equal(domain.StatusOnService, first.Status)
	s.Nil(first.NextRetry)

	s.Equal(domain.CanonicalNumber("+2348023456789"), second.Phone)
	s.Equal(domain.StatusNotOnService, second.Status)
	s.Require().NotNil(second.NextRetry)
	s.Equal(s.now.Add(24*time.Hour), *second.NextRetry)

	s.Equal(batch.Summary{Total: 2, OnService: 1, NotOnService: 1}, res.Summary)
	s.False(res.RunID.IsNil())
	s.Equal(24, res.RetryHours)

	stats, ok := s.store.UserStats(s.ctx, "tg:1")
	s.Require().True(ok)
	s.Equal(2, stats.TotalChecked)
}

func (s *RunnerSuite) TestEachItemIsStampedWhenChecked() {
	verifier := mocks.NewMockVerifier(s.ctrl)
	verifier.EXPECT().Check(gomock.Any(), gomock.Any()).Times(3).
		DoAndReturn(func(context.Context, domain.CanonicalNumber) (domain.Status, error) {
			s.now = s.now.Add(30 * time.Second)
			return domain.StatusNotOnService, nil
		})
	started := s.now

	runner := s.newRunner(verifier, s.store)
	requestStart := requestcontext.WithTime(context.Background(), started)
	res, err := runner.Run(requestStart, batch.Request{Numbers: numbers(3), RetryHours: 24}, nil)
	s.Require().NoError(err)
	s.Require().Len(res.Results, 3)

	for i, item := range res.Results {
		want := started.Add(time.Duration(i+1) * 30 * time.Second)
		s.Equal(want, item.CheckTime, "item %d", i)
		s.Require().NotNil(item.NextRetry)
		s.Equal(want.Add(24*time.Hour), *item.NextRetry, "item %d", i)
	}
	s.Equal(started, res.StartedAt)
	s.Equal(started.Add(90*time.Second), res.FinishedAt)
}

func (s *RunnerSuite) TestRealClockAdvancesWithCallInterval() {
	client, err := verification.New(verification.NewStubBackend(0),
		verification.WithMinInterval(25*time.Millisecond))
	s.Require().NoError(err)
	store, err := ledger.New(ledger.NewFileStore(filepath.Join(s.T().TempDir(), "data.json")),
		ledger.WithFlushPolicy(ledger.Never{}))
	s.Require().NoError(err)
	runner, err := batch.New(s.normalizer, client, store)
	s.Require().NoError(err)

	res, err := runner.Run(s.ctx, batch.Request{Numbers: numbers(3), RetryHours: 24}, nil)
	s.Require().NoError(err)
	s.Require().Len(res.Results, 3)

	first, last := res.Results[0].CheckTime, res.Results[2].CheckTime
	s.True(res.Results[1].CheckTime.After(first))
	s.True(last.After(res.Results[1].CheckTime))
	s.GreaterOrEqual(last.Sub(first), 40*time.Millisecond)
	s.False(res.FinishedAt.Before(last))
}

func (s *RunnerSuite) TestEveryInputYieldsOneResultInOrder() {
	verifier := mocks.NewMockVerifier(s.ctrl)
	verifier.EXPECT().Check(gomock.Any(), domain.InvalidNumber).Return(domain.StatusInvalid, nil)
	verifier.EXPECT().Check(gomock.Any(), domain.CanonicalNumber("+2348030000001")).
		Return(domain.StatusError, errors.New("provider down"))
	verifier.EXPECT().Check(gomock.Any(), domain.CanonicalNumber("+2348030000002")).
		Return(domain.StatusOnService, nil)
	verifier.EXPECT().Check(gomock.Any(), domain.CanonicalNumber("+2348030000002")).
		Return(domain.StatusOnService, nil)

	runner := s.newRunner(verifier, s.store)
	input := []string{"no digits here", "08030000001", "+2348030000002", "2348030000002"}

	res, err := runner.Run(s.ctx, batch.Request{Numbers: input, RetryHours: 1}, nil)
	s.Require().NoError(err)
	s.Require().Len(res.Results, len(input))

	got := make([]domain.Status, len(res.Results))
	for i, r := range res.Results {
		got[i] = r.Status
	}
	s.Equal([]domain.Status{
		domain.StatusInvalid, domain.StatusError, domain.StatusOnService, domain.StatusOnService,
	}, got)
	s.Equal(batch.Summary{Total: 4, OnService: 2, Invalid: 1, Error: 1}, res.Summary)

	rec, ok := s.store.Get(s.ctx, "+2348030000002")
	s.Require().True(ok)
	s.Equal(2, rec.Attempts, "duplicates are not deduplicated")
}

func (s *RunnerSuite) TestProgressCadence() {
	runner := s.newRunner(s.client, s.store)

	var seen []batch.Progress
	res, err := runner.Run(s.ctx, batch.Request{Numbers: numbers(12), RetryHours: 24}, func(p batch.Progress) {
		seen = append(seen, p)
	})
	s.Require().NoError(err)
	s.Len(res.Results, 12)

	s.Require().Len(seen, 3)
	s.Equal([]int{5, 10, 12}, []int{seen[0].Processed, seen[1].Processed, seen[2].Processed})
	s.Equal(41, seen[0].Percent)
	s.Equal(100, seen[2].Percent)
	last := seen[2]
	s.Equal(12, last.Total)
	s.Equal(res.Summary.OnService, last.OnService)
	s.Equal(res.Summary.NotOnService, last.NotOnService)
}

func (s *RunnerSuite) TestProgressCadenceIsConfigurable() {
	runner := s.newRunner(s.client, s.store, batch.WithProgressEvery(2))

	var processed []int
	_, err := runner.Run(s.ctx, batch.Request{Numbers: numbers(5), RetryHours: 24}, func(p batch.Progress) {
		processed = append(processed, p.Processed)
	})
	s.Require().NoError(err)
	s.Equal([]int{2, 4, 5}, processed)
}

func (s *RunnerSuite) TestValidationHappensBeforeSideEffects() {
	verifier := mocks.NewMockVerifier(s.ctrl)
	store := mocks.NewMockLedger(s.ctrl)
	runner := s.newRunner(verifier, store)

	cases := []batch.Request{
		{Numbers: nil, RetryHours: 24},
		{Numbers: []string{"08030000000"}, RetryHours: 0},
		{Numbers: []string{"08030000000"}, RetryHours: 169},
	}
	for _, req := range cases {
		_, err := runner.Run(s.ctx, req, nil)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	}
}

func (s *RunnerSuite) TestRetryBoundsAreConfigurable() {
	runner := s.newRunner(s.client, s.store, batch.WithRetryBounds(2, 4))
	minH, maxH := runner.RetryBounds()
	s.Equal(2, minH)
	s.Equal(4, maxH)

	s.Error(runner.Validate(batch.Request{Numbers: []string{"1"}, RetryHours: 1}))
	s.NoError(runner.Validate(batch.Request{Numbers: []string{"1"}, RetryHours: 4}))
	s.Error(runner.Validate(batch.Request{Numbers: []string{"1"}, RetryHours: 5}))
}

func (s *RunnerSuite) TestCancellationKeepsCommittedLedgerUpdates() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	calls := 0
	verifier := mocks.NewMockVerifier(s.ctrl)
	verifier.EXPECT().Check(gomock.Any(), gomock.Any()).Times(3).
		DoAndReturn(func(ctx context.Context, _ domain.CanonicalNumber) (domain.Status, error) {
			calls++
			if calls == 3 {
				cancel()
				return domain.StatusError, ctx.Err()
			}
			return domain.StatusNotOnService, nil
		})

	runner := s.newRunner(verifier, s.store)
	input := numbers(6)
	res, err := runner.Run(ctx, batch.Request{SessionKey: "tg:2", Numbers: input, RetryHours: 24}, nil)
	s.Nil(res)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeCancelled))
	s.ErrorIs(err, context.Canceled)

	s.Equal(2, s.store.Len(), "items processed before cancellation stay recorded")
	_, ok := s.store.UserStats(s.ctx, "tg:2")
	s.False(ok, "cancelled runs do not update usage statistics")
}

func (s *RunnerSuite) TestCancelledBeforeStart() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	runner := s.newRunner(mocks.NewMockVerifier(s.ctrl), mocks.NewMockLedger(s.ctrl))
	_, err := runner.Run(ctx, batch.Request{Numbers: numbers(3), RetryHours: 24}, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeCancelled))
}

func (s *RunnerSuite) TestLedgerFailuresDoNotAbortTheRun() {
	store := mocks.NewMockLedger(s.ctrl)
	store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any(), 12).
		Return(ledger.Record{}, errors.New("ledger is closed")).Times(2)
	store.EXPECT().RecordRun(gomock.Any(), domain.SessionKey("tg:3"), 2)
	store.EXPECT().Flush(gomock.Any()).Return(errors.New("disk full"))

	runner := s.newRunner(s.client, store)
	res, err := runner.Run(s.ctx, batch.Request{
		SessionKey: "tg:3", Numbers: []string{"08030000000", "08030000001"}, RetryHours: 12,
	}, nil)
	s.Require().NoError(err)
	s.Require().Len(res.Results, 2)

	s.Equal(s.now, res.Results[0].CheckTime)
	s.Nil(res.Results[0].NextRetry)
	s.Require().NotNil(res.Results[1].NextRetry)
	s.Equal(s.now.Add(12*time.Hour), *res.Results[1].NextRetry)
}

func (s *RunnerSuite) TestPublishesRunCompleted() {
	publisher := mocks.NewMockPublisher(s.ctrl)
	var got events.RunCompleted
	publisher.EXPECT().PublishRunCompleted(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev events.RunCompleted) error {
			got = ev
			return errors.New("broker unavailable")
		})

	runner := s.newRunner(s.client, s.store, batch.WithPublisher(publisher))
	res, err := runner.Run(s.ctx, batch.Request{SessionKey: "tg:4", Numbers: numbers(3), RetryHours: 48}, nil)
	s.Require().NoError(err, "publish failures are logged, not returned")

	s.Equal(res.RunID, got.RunID)
	s.Equal(domain.SessionKey("tg:4"), got.SessionKey)
	s.Equal(3, got.Total)
	s.Equal(48, got.RetryHours)
	s.NotEmpty(got.EventID)
}

func (s *RunnerSuite) TestMetrics() {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	runner := s.newRunner(s.client, s.store, batch.WithMetrics(m))

	_, err := runner.Run(s.ctx, batch.Request{Numbers: []string{"08030000000", "08030000001"}, RetryHours: 24}, nil)
	s.Require().NoError(err)
	_, err = runner.Run(s.ctx, batch.Request{RetryHours: 24}, nil)
	s.Require().Error(err)

	s.Equal(float64(1), promtestutil.ToFloat64(m.BatchRunsTotal.WithLabelValues("completed")))
	s.Equal(float64(1), promtestutil.ToFloat64(m.BatchRunsTotal.WithLabelValues("rejected")))
	s.Equal(float64(1), promtestutil.ToFloat64(m.BatchItemsTotal.WithLabelValues("on_service")))
	s.Equal(float64(1), promtestutil.ToFloat64(m.BatchItemsTotal.WithLabelValues("not_on_service")))
}
