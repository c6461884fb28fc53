package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_checkout/internal/outbox"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	batchSize          = 100
	processedRetention = 7 * 24 * time.Hour
)

// EventStore is the part of the outbox the poller drains.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*outbox.Event, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes outbox rows to Kafka in id order and marks them processed.
type OutboxPoller struct {
	timeout     time.Duration
	eventTick   time.Duration
	cleanupTick time.Duration
	repo        EventStore
	writer      MessageWriter
	logger      *zap.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo EventStore, writer MessageWriter, logger *zap.Logger) *OutboxPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxPoller{
		timeout:     5 * time.Second,
		eventTick:   time.Second,
		cleanupTick: time.Hour,
		repo:        repo,
		writer:      writer,
		logger:      logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	cleanupTicker := time.NewTicker(p.cleanupTick)
	defer eventTicker.Stop()
	defer cleanupTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-cleanupTicker.C:
			p.cleanupProcessed(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.logger.Warn("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if errPublish := p.publishToKafka(ctx, event); errPublish != nil {
			// stop here so later events of the same transaction are not published first
			p.logger.Warn("failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Error(errPublish))
			return
		}

		if errMark := p.repo.MarkEventAsProcessed(ctx, event.ID); errMark != nil {
			p.logger.Warn("failed to mark outbox event as processed", zap.Int64("event_id", event.ID), zap.Error(errMark))
			return
		}
	}
}

func (p *OutboxPoller) cleanupProcessed(ctx context.Context) {
	deleted, err := p.repo.DeleteProcessedBefore(ctx, time.Now().Add(-processedRetention))
	if err != nil {
		p.logger.Warn("failed to clean up outbox", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("outbox cleaned up", zap.Int64("deleted", deleted))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *outbox.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: outbox.HeaderEventType, Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(writeCtx, msg)
}
