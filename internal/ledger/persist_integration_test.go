//go:build integration

package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/suite"

	"numcheck/internal/ledger"
	"numcheck/pkg/platform/sentinel"
	"numcheck/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ledger.SQLStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	store, err := ledger.NewSQLStore(s.postgres.DB, ledger.DialectPostgres)
	s.Require().NoError(err)
	s.Require().NoError(store.EnsureSchema(context.Background()))
	s.store = store
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "checked_numbers", "user_data"))
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	_, err := s.store.Load(ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	want := sampleSnapshot(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.Save(ctx, want))
	s.Require().NoError(s.store.Save(ctx, want), "saving twice upserts")

	got, err := s.store.Load(ctx)
	s.Require().NoError(err)
	if diff := cmp.Diff(want, got); diff != "" {
		s.Failf("snapshot mismatch", "(-want +got):\n%s", diff)
	}
}

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *ledger.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	store, err := ledger.NewRedisStore(s.redis.Client, "numcheck:ledger:test")
	s.Require().NoError(err)
	s.store = store
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	_, err := s.store.Load(ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)

	want := sampleSnapshot(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(s.store.Save(ctx, want))

	got, err := s.store.Load(ctx)
	s.Require().NoError(err)
	if diff := cmp.Diff(want, got); diff != "" {
		s.Failf("snapshot mismatch", "(-want +got):\n%s", diff)
	}
}

func (s *RedisStoreSuite) TestCorruptValue() {
	ctx := context.Background()
	s.Require().NoError(s.redis.Client.Set(ctx, "numcheck:ledger:test", "{not json", 0).Err())
	_, err := s.store.Load(ctx)
	s.ErrorIs(err, sentinel.ErrCorrupt)
}
