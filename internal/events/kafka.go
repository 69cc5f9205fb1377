package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"numcheck/internal/platform/config"
	"numcheck/internal/platform/logger"
)

// KafkaPublisher produces events to a Kafka topic keyed by session, so all
// runs of one session land on the same partition.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// DefaultPublishTimeout applies when the configuration leaves it unset.
const DefaultPublishTimeout = 5 * time.Second

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

func WithLogger(l *slog.Logger) KafkaOption {
	return func(p *KafkaPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewKafkaPublisher creates a client for the configured brokers. Nothing is
// dialed until the first request. Every publish gives up after the publish
// timeout, so an unreachable broker delays a run by at most that long.
func NewKafkaPublisher(cfg config.Kafka, opts ...KafkaOption) (*KafkaPublisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("kafka brokers are required")
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ClientID("numcheck"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &KafkaPublisher{client: client, topic: cfg.Topic, timeout: timeout, logger: logger.Discard()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	adm := kadm.NewClient(p.client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// PublishRunCompleted waits for the broker to acknowledge the event, up to
// the publish timeout.
func (p *KafkaPublisher) PublishRunCompleted(ctx context.Context, ev RunCompleted) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode run event: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.SessionKey),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(TypeRunCompleted)},
			{Key: "event_id", Value: []byte(ev.EventID)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce run event: %w", err)
	}
	p.logger.DebugContext(ctx, "run event published", "run_id", ev.RunID.String(), "topic", p.topic)
	return nil
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
