package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/circuitbreaker"
	"github.com/sedori-tools/repricer/internal/log"
	"github.com/sedori-tools/repricer/internal/repository"
)

// Event types
const (
	TypeRunCompleted  = "repricer.run.completed"
	TypeConfigUpdated = "repricer.config.updated"
)

// Event represents a domain event
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Aggregate string                 `json:"aggregate"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
	Version   int                    `json:"version"`
}

// Publisher defines the interface for publishing events
type Publisher interface {
	// Publish publishes an event
	Publish(ctx context.Context, event *Event) error

	// PublishBatch publishes multiple events
	PublishBatch(ctx context.Context, events []*Event) error

	// Close closes the publisher
	Close() error
}

// NewEvent creates a new event
func NewEvent(eventType, aggregate string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Aggregate: aggregate,
		Data:      data,
		Timestamp: time.Now().Unix(),
		Version:   1,
	}
}

// NewRunCompletedEvent describes a finished repricing run
func NewRunCompletedEvent(run *repository.Run) *Event {
	return NewEvent(TypeRunCompleted, run.ID.String(), map[string]interface{}{
		"mode":            string(run.Mode),
		"trigger":         run.Trigger,
		"run_date":        run.RunDate.Format("2006-01-02"),
		"source_file":     run.SourceFile,
		"summary":         run.Summary,
		"config_problems": run.ConfigProblems,
		"updated_path":    run.UpdatedPath,
		"report_path":     run.ReportPath,
	})
}

// NoopPublisher is a no-operation publisher for testing and development
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event *Event) error { return nil }

func (NoopPublisher) PublishBatch(ctx context.Context, events []*Event) error { return nil }

func (NoopPublisher) Close() error { return nil }

// KafkaConfig holds producer settings
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewSyncProducer builds a producer that waits for all in-sync replicas
func NewSyncProducer(cfg KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaPublisher publishes events to a Kafka topic, keyed by aggregate
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher creates a new Kafka publisher
func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

func (p *KafkaPublisher) message(event *Event) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}
	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.Aggregate),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("event_id"), Value: []byte(event.ID)},
		},
	}, nil
}

// Publish publishes an event
func (p *KafkaPublisher) Publish(ctx context.Context, event *Event) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}
	log.With(ctx, p.logger).Debug("Published event",
		zap.String("topic", p.topic),
		zap.String("event_type", event.Type),
		zap.String("event_id", event.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// PublishBatch publishes multiple events in one producer call
func (p *KafkaPublisher) PublishBatch(ctx context.Context, events []*Event) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, event := range events {
		msg, err := p.message(event)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(events), err)
	}
	return nil
}

// Close closes the publisher
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// GuardedPublisher stops calling a failing broker until the breaker lets a
// trial call through
type GuardedPublisher struct {
	inner   Publisher
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedPublisher wraps inner with breaker
func NewGuardedPublisher(inner Publisher, breaker *circuitbreaker.CircuitBreaker) *GuardedPublisher {
	return &GuardedPublisher{inner: inner, breaker: breaker}
}

func (p *GuardedPublisher) Publish(ctx context.Context, event *Event) error {
	return p.breaker.Execute(ctx, func() error {
		return p.inner.Publish(ctx, event)
	})
}

func (p *GuardedPublisher) PublishBatch(ctx context.Context, events []*Event) error {
	return p.breaker.Execute(ctx, func() error {
		return p.inner.PublishBatch(ctx, events)
	})
}

func (p *GuardedPublisher) Close() error {
	return p.inner.Close()
}
