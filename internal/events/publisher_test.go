package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sedori-tools/repricer/internal/circuitbreaker"
	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
)

func sampleRun() *repository.Run {
	return &repository.Run{
		ID:         uuid.New(),
		Mode:       repricer.ModeApply,
		Trigger:    "schedule",
		RunDate:    time.Date(2026, time.October, 7, 0, 0, 0, 0, time.UTC),
		SourceFile: "inventory.csv",
		Summary:    repricer.Summary{TotalRows: 5, UpdatedRows: 2},
	}
}

func TestNoopPublisher(t *testing.T) {
	var publisher Publisher = NoopPublisher{}
	ctx := context.Background()

	if err := publisher.Publish(ctx, NewRunCompletedEvent(sampleRun())); err != nil {
		t.Errorf("Expected no error from NoopPublisher, got: %v", err)
	}
	if err := publisher.Close(); err != nil {
		t.Errorf("Expected no error from NoopPublisher.Close, got: %v", err)
	}
}

func TestKafkaPublisher_PublishRunCompleted(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	run := sampleRun()

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event Event
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.Type != TypeRunCompleted {
			return errors.New("unexpected event type " + event.Type)
		}
		if event.Aggregate != run.ID.String() {
			return errors.New("unexpected aggregate " + event.Aggregate)
		}
		if event.Data["run_date"] != "2026-10-07" {
			return errors.New("unexpected run date")
		}
		return nil
	})

	publisher := NewKafkaPublisher(producer, TypeRunCompleted, zap.NewNop())
	require.NoError(t, publisher.Publish(context.Background(), NewRunCompletedEvent(run)))
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisher(producer, TypeRunCompleted, nil)
	err := publisher.Publish(context.Background(), NewRunCompletedEvent(sampleRun()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_PublishBatch(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndSucceed()

	publisher := NewKafkaPublisher(producer, TypeRunCompleted, nil)
	events := []*Event{
		NewRunCompletedEvent(sampleRun()),
		NewEvent(TypeConfigUpdated, "rules", map[string]interface{}{"rules": 13}),
	}
	require.NoError(t, publisher.PublishBatch(context.Background(), events))
	require.NoError(t, publisher.Close())
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := NewEvent(TypeConfigUpdated, "rules", nil)
	b := NewEvent(TypeConfigUpdated, "rules", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 1, a.Version)
}

func TestPublisherInterface(t *testing.T) {
	var _ Publisher = NoopPublisher{}
	var _ Publisher = &KafkaPublisher{}
	var _ Publisher = &GuardedPublisher{}
}

func TestGuardedPublisher_StopsCallingBrokenBroker(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	breaker := circuitbreaker.New("kafka", circuitbreaker.Config{MaxFailures: 1, Timeout: time.Hour, SuccessThreshold: 1}, nil)
	publisher := NewGuardedPublisher(NewKafkaPublisher(producer, TypeRunCompleted, nil), breaker)

	err := publisher.Publish(context.Background(), NewRunCompletedEvent(sampleRun()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	err = publisher.Publish(context.Background(), NewRunCompletedEvent(sampleRun()))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	require.NoError(t, publisher.Close())
}
