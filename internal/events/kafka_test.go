package events_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numcheck/internal/batch"
	"numcheck/internal/events"
	"numcheck/internal/ledger"
	"numcheck/internal/phone"
	"numcheck/internal/platform/config"
	"numcheck/internal/verification"
	"numcheck/pkg/domain"
)

// Nothing listens on port 1, so every produce waits on metadata that never
// arrives.
func unreachableKafka(timeout time.Duration) config.Kafka {
	return config.Kafka{Brokers: []string{"127.0.0.1:1"}, Topic: "numcheck.runs", PublishTimeout: timeout}
}

func TestKafkaPublisher_UnreachableBrokerIsBounded(t *testing.T) {
	pub, err := events.NewKafkaPublisher(unreachableKafka(200 * time.Millisecond))
	require.NoError(t, err)
	defer pub.Close()

	start := time.Now()
	err = pub.PublishRunCompleted(context.Background(), events.RunCompleted{
		EventID:    events.NewEventID(),
		RunID:      domain.NewRunID(),
		SessionKey: "tg:1",
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestKafkaPublisher_EnsureTopicIsBounded(t *testing.T) {
	pub, err := events.NewKafkaPublisher(unreachableKafka(200 * time.Millisecond))
	require.NoError(t, err)
	defer pub.Close()

	start := time.Now()
	require.Error(t, pub.EnsureTopic(context.Background(), 1, 1))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRunCompletesWhenBrokerIsUnreachable(t *testing.T) {
	pub, err := events.NewKafkaPublisher(unreachableKafka(200 * time.Millisecond))
	require.NoError(t, err)
	defer pub.Close()

	normalizer, err := phone.NewNormalizer(phone.DefaultCountryCode, phone.DefaultTrunkPrefix)
	require.NoError(t, err)
	client, err := verification.New(verification.NewStubBackend(0), verification.WithMinInterval(0))
	require.NoError(t, err)
	store, err := ledger.New(ledger.NewFileStore(filepath.Join(t.TempDir(), "data.json")),
		ledger.WithFlushPolicy(ledger.Never{}))
	require.NoError(t, err)
	runner, err := batch.New(normalizer, client, store, batch.WithPublisher(pub))
	require.NoError(t, err)

	done := make(chan *batch.Result, 1)
	go func() {
		res, err := runner.Run(context.Background(), batch.Request{
			SessionKey: "tg:1", Numbers: []string{"08012345678", "08012345679"}, RetryHours: 24,
		}, nil)
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.Equal(t, batch.Summary{Total: 2, OnService: 1, NotOnService: 1}, res.Summary)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return while the event broker was unreachable")
	}
}
