package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/outbox"
	"github.com/fjod/go_checkout/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 2 * time.Second
)

type OrderWriter interface {
	CreateOrderAfterPayment(ctx context.Context, transactionID string, order checkout.PendingOrderData) (*domain.OrderRecord, error)
}

type Journal interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.PaymentAttempt, error)
	MarkOrderCreated(ctx context.Context, transactionID, orderNumber string) error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Reconciler writes orders for payments that succeeded while the inline
// order creation failed.
type Reconciler struct {
	journal     Journal
	orders      OrderWriter
	reader      MessageReader
	logger      *zap.Logger
	maxAttempts int
	retryDelay  time.Duration
}

func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewReconciler(journal Journal, orders OrderWriter, reader MessageReader, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		journal:     journal,
		orders:      orders,
		reader:      reader,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		r.processMessage(ctx)
	}
}

func (r *Reconciler) Close() {
	if err := r.reader.Close(); err != nil {
		r.logger.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (r *Reconciler) processMessage(ctx context.Context) {
	m, err := r.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.logger.Warn("error reading message", zap.Error(err))
		return
	}

	for attempt := 1; ; attempt++ {
		err = r.handle(ctx, m)
		if err == nil || attempt >= r.maxAttempts || ctx.Err() != nil {
			break
		}
		r.logger.Warn("order reconciliation failed, retrying",
			zap.String("transaction_id", string(m.Key)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-time.After(r.retryDelay):
		case <-ctx.Done():
		}
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		r.logger.Error("giving up on order reconciliation",
			zap.String("transaction_id", string(m.Key)),
			zap.Error(err))
	}

	if errCommit := r.reader.CommitMessages(ctx, m); errCommit != nil {
		r.logger.Warn("failed to commit message", zap.Error(errCommit))
	}
}

func (r *Reconciler) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != outbox.EventOrderCreationFailed {
		return nil
	}

	var payload outbox.OutcomePayload
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		r.logger.Warn("error parsing message", zap.Error(err))
		return nil
	}
	if payload.TransactionID == "" || payload.OrderData == nil {
		r.logger.Warn("order creation event without transaction or order data",
			zap.String("attempt_id", payload.AttemptID))
		return nil
	}

	attempt, err := r.journal.GetByTransactionID(ctx, payload.TransactionID)
	switch {
	case err == nil && attempt.OrderCreated:
		r.logger.Info("order already created, skipping", zap.String("transaction_id", payload.TransactionID))
		return nil
	case err != nil && !errors.Is(err, repository.ErrAttemptNotFound):
		return fmt.Errorf("journal lookup: %w", err)
	}

	record, err := r.orders.CreateOrderAfterPayment(ctx, payload.TransactionID, *payload.OrderData)
	if err != nil {
		return fmt.Errorf("create order after payment: %w", err)
	}

	// the order exists now; a journal failure must not trigger a second create
	if err := r.journal.MarkOrderCreated(ctx, payload.TransactionID, record.OrderNumber); err != nil {
		r.logger.Warn("order created but journal not updated",
			zap.String("transaction_id", payload.TransactionID),
			zap.Error(err))
	}

	r.logger.Info("order reconciled",
		zap.String("transaction_id", payload.TransactionID),
		zap.String("order_number", record.OrderNumber))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == outbox.HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}
