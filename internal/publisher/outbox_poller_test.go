package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_checkout/internal/outbox"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type MockRepository struct {
	m            sync.Mutex
	OutboxEvents []*outbox.Event
	GetErr       error
	MarkErr      error
	ProcessedIDs []int64
	DeleteCutoff time.Time
	Deleted      int64
}

func (m *MockRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*outbox.Event, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var out []*outbox.Event
	for _, e := range m.OutboxEvents {
		if e.ProcessedAt == nil && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	now := time.Now()
	for _, e := range m.OutboxEvents {
		if e.ID == id {
			e.ProcessedAt = &now
		}
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.DeleteCutoff = cutoff
	return m.Deleted, nil
}

func (m *MockRepository) processed() []int64 {
	m.m.Lock()
	defer m.m.Unlock()
	out := make([]int64, len(m.ProcessedIDs))
	copy(out, m.ProcessedIDs)
	return out
}

type mockWriter struct {
	m        sync.Mutex
	messages []kafkaGo.Message
	failOn   string
	closed   bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	for _, msg := range msgs {
		if w.failOn != "" && string(msg.Key) == w.failOn {
			return errors.New("broker unavailable")
		}
		w.messages = append(w.messages, msg)
	}
	return nil
}

func (w *mockWriter) Close() error {
	w.m.Lock()
	defer w.m.Unlock()
	w.closed = true
	return nil
}

func event(id int64, txID, eventType string) *outbox.Event {
	return &outbox.Event{
		ID:          id,
		AggregateID: txID,
		EventType:   eventType,
		Payload:     json.RawMessage(fmt.Sprintf(`{"transaction_id":%q}`, txID)),
		CreatedAt:   time.Now(),
	}
}

func TestProcessUnpublishedEvents_PublishesInOrder(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*outbox.Event{
		event(1, "TX-1", outbox.EventPaymentSucceeded),
		event(2, "TX-1", outbox.EventOrderCreationFailed),
		event(3, "TX-2", outbox.EventPaymentFailed),
	}}
	w := &mockWriter{}
	p := NewOutboxPoller(repo, w, nil)

	p.processUnpublishedEvents(context.Background())

	require.Len(t, w.messages, 3)
	assert.Equal(t, "TX-1", string(w.messages[0].Key))
	assert.Equal(t, outbox.HeaderEventType, w.messages[1].Headers[0].Key)
	assert.Equal(t, outbox.EventOrderCreationFailed, string(w.messages[1].Headers[0].Value))
	assert.Equal(t, []int64{1, 2, 3}, repo.processed())
}

func TestProcessUnpublishedEvents_StopsAtFirstFailure(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*outbox.Event{
		event(1, "TX-1", outbox.EventPaymentSucceeded),
		event(2, "TX-2", outbox.EventPaymentSucceeded),
		event(3, "TX-3", outbox.EventPaymentSucceeded),
	}}
	w := &mockWriter{failOn: "TX-2"}
	p := NewOutboxPoller(repo, w, nil)

	p.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{1}, repo.processed())

	w.failOn = ""
	p.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1, 2, 3}, repo.processed())
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	repo := &MockRepository{GetErr: errors.New("database connection error")}
	w := &mockWriter{}
	p := NewOutboxPoller(repo, w, nil)

	p.processUnpublishedEvents(context.Background())

	assert.Empty(t, w.messages)
}

func TestProcessUnpublishedEvents_MarkErrorRepublishesLater(t *testing.T) {
	repo := &MockRepository{
		OutboxEvents: []*outbox.Event{event(1, "TX-1", outbox.EventPaymentSucceeded)},
		MarkErr:      errors.New("deadlock"),
	}
	w := &mockWriter{}
	p := NewOutboxPoller(repo, w, nil)

	p.processUnpublishedEvents(context.Background())
	repo.m.Lock()
	repo.MarkErr = nil
	repo.m.Unlock()
	p.processUnpublishedEvents(context.Background())

	// at-least-once: the consumer deduplicates
	assert.Len(t, w.messages, 2)
	assert.Equal(t, []int64{1}, repo.processed())
}

func TestCleanupProcessed(t *testing.T) {
	repo := &MockRepository{Deleted: 4}
	p := NewOutboxPoller(repo, &mockWriter{}, nil)

	p.cleanupProcessed(context.Background())

	assert.WithinDuration(t, time.Now().Add(-processedRetention), repo.DeleteCutoff, time.Minute)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*outbox.Event{event(1, "TX-1", outbox.EventPaymentSucceeded)}}
	w := &mockWriter{}
	p := NewOutboxPoller(repo, w, nil)
	p.eventTick = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(repo.processed()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func setupKafka(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, outbox.DefaultTopic)
	time.Sleep(5 * time.Second)

	repo := &MockRepository{OutboxEvents: []*outbox.Event{event(1, "TX-123", outbox.EventPaymentSucceeded)}}
	writer := NewKafkaWriter(outbox.DefaultTopic, brokerAddr)
	writer.WriteTimeout = 10 * time.Second
	p := NewOutboxPoller(repo, writer, nil)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	go p.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    outbox.DefaultTopic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TX-123", string(msg.Key))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "TX-123", payload["transaction_id"])

	require.Eventually(t, func() bool { return len(repo.processed()) == 1 }, 5*time.Second, 50*time.Millisecond)
}
