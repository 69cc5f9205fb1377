package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"numcheck/internal/platform/config"
	"numcheck/pkg/domain"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishRunCompleted(context.Background(), RunCompleted{}))
	p.Close()
}

func TestRunCompletedJSON(t *testing.T) {
	ev := RunCompleted{
		EventID:    NewEventID(),
		RunID:      domain.NewRunID(),
		SessionKey: "tg:5",
		Total:      2,
		OnService:  1,
		RetryHours: 24,
		StartedAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 5, 1, 9, 0, 1, 0, time.UTC),
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, ev.RunID.String(), fields["run_id"])
	assert.Equal(t, "tg:5", fields["session_key"])
	assert.EqualValues(t, 24, fields["retry_hours"])
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(config.Kafka{Topic: "x"})
	require.Error(t, err)
}
